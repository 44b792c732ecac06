package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
// This command shows the sessions recorded in the history database and
// compares two of them.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show and compare previous mirror sessions",
		Long: `History lists the sessions recorded by 'sitemirror mirror'.

Without arguments, it lists every mirrored host. With a host, it lists the
sessions of that host, newest first.

--diff compares the saved content of two sessions of the host: by default
the two newest, or the sessions given with --from and --to. A resource is
reported as changed when its SHA-256 differs.

Examples:
  # List mirrored hosts
  sitemirror history

  # List the sessions of a host
  sitemirror history example.com

  # What changed since the previous mirror?
  sitemirror history --diff example.com

  # Show the stored report of a session
  sitemirror history --show 3f1c... --format markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("show", "",
		"Print the stored report of the session with this ID")
	cmd.Flags().BoolP("diff", "D", false,
		"Compare two sessions of the host")
	cmd.Flags().String("from", "",
		"Older session ID for --diff (default: second newest)")
	cmd.Flags().String("to", "",
		"Newer session ID for --diff (default: newest)")
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Output format: "+strings.Join(config.Formats, ", "))
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	var host string
	if len(args) == 1 {
		host = hostArg(args[0])
	}
	showID := v.GetString("show")
	diff := v.GetBool("diff")
	format := strings.ToLower(v.GetString("format"))

	// Validate arguments before opening the database
	if diff && host == "" && (v.GetString("from") == "" || v.GetString("to") == "") {
		return errors.New("--diff requires a host, or both --from and --to")
	}

	db, err := database.Open(dbDir(v), database.Options{CreateIfNotExists: false, EnableWAL: true})
	if errors.Is(err, database.ErrNoDatabase) {
		fmt.Fprintln(cmd.OutOrStdout(), "No mirror history found.")
		fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'sitemirror mirror <url>' to mirror a site.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case showID != "":
		return showSession(ctx, db, out, showID, format, v.GetBool("verbose"))
	case diff:
		return diffSessions(ctx, db, out, host, v.GetString("from"), v.GetString("to"), format)
	case host != "":
		return listSessions(ctx, db, out, host)
	default:
		return listHosts(ctx, db, out)
	}
}

// hostArg accepts a bare host or a URL and returns the lowercase host.
func hostArg(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "://") {
		if u, err := url.Parse(arg); err == nil && u.Host != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	return strings.ToLower(strings.TrimSuffix(arg, "/"))
}

// listHosts lists every host with recorded sessions.
func listHosts(ctx context.Context, db *database.MirrorDB, out io.Writer) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	if len(hosts) == 0 {
		fmt.Fprintln(out, "No mirrored hosts found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Mirrored hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Fprintf(out, "  • %s\n", host)
	}
	fmt.Fprintln(out, "\nUse 'sitemirror history <host>' to see the sessions of a host.")
	return nil
}

// listSessions prints the sessions of host, newest first.
func listSessions(ctx context.Context, db *database.MirrorDB, out io.Writer, host string) error {
	sessions, err := db.ListSessions(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions found for %s\n", host)
		return nil
	}

	fmt.Fprintf(out, "Sessions for %s (%d):\n\n", host, len(sessions))
	fmt.Fprintf(out, "  %-36s  %-19s  %6s  %6s  %8s  %10s  %s\n",
		"ID", "Started", "Saved", "Failed", "Filtered", "Size", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 104))

	for _, s := range sessions {
		fmt.Fprintf(out, "  %-36s  %-19s  %6d  %6d  %8d  %10s  %s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Saved, s.Failed, s.Filtered,
			report.FormatBytes(s.Bytes),
			sessionStatus(s),
		)
	}
	return nil
}

// sessionStatus summarizes how a session ended.
func sessionStatus(s database.SessionSummary) string {
	switch {
	case s.TimedOut && s.Error == context.Canceled.Error():
		return "interrupted"
	case s.TimedOut:
		return "timed out"
	case s.Error != "":
		return "error"
	default:
		return "complete"
	}
}

// showSession renders the stored report of a session.
func showSession(ctx context.Context, db *database.MirrorDB, out io.Writer, id, format string, verbose bool) error {
	rep, err := db.GetReport(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", id, err)
	}

	w, err := report.NewWriter(format, out, getVersion(), verbose)
	if err != nil {
		return err
	}
	_, err = w.Write(rep)
	return err
}

// diffSessions compares two sessions. Missing IDs are filled in with the
// newest sessions of host.
func diffSessions(ctx context.Context, db *database.MirrorDB, out io.Writer, host, fromID, toID, format string) error {
	if fromID == "" || toID == "" {
		sessions, err := db.ListSessions(ctx, host)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if toID == "" {
			if len(sessions) == 0 {
				return fmt.Errorf("no sessions found for %s", host)
			}
			toID = sessions[0].ID
		}
		if fromID == "" {
			fromID = previousSession(sessions, toID)
			if fromID == "" {
				return fmt.Errorf("at least two sessions are needed to compare (found %d for %s)", len(sessions), host)
			}
		}
	}

	d, err := db.Compare(ctx, fromID, toID)
	if err != nil {
		return fmt.Errorf("failed to compare sessions: %w", err)
	}

	switch format {
	case config.DefaultFormat, "":
		return writeDiffText(out, fromID, toID, d)
	case "json":
		return writeDiffJSON(out, fromID, toID, d)
	case "markdown", "md":
		return writeDiffMarkdown(out, fromID, toID, d)
	default:
		return fmt.Errorf("%w: %s", report.ErrUnknownFormat, format)
	}
}

// previousSession returns the session recorded just before id in a list
// ordered newest first.
func previousSession(sessions []database.SessionSummary, id string) string {
	for i, s := range sessions {
		if s.ID == id && i+1 < len(sessions) {
			return sessions[i+1].ID
		}
	}
	return ""
}

// diffJSON is the JSON form of a comparison.
type diffJSON struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Changed   []string `json:"changed"`
	Unchanged int      `json:"unchanged"`
}

func writeDiffJSON(out io.Writer, fromID, toID string, d database.Diff) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(diffJSON{
		From:      fromID,
		To:        toID,
		Added:     nonNil(d.Added),
		Removed:   nonNil(d.Removed),
		Changed:   nonNil(d.Changed),
		Unchanged: d.Unchanged,
	})
}

func writeDiffText(out io.Writer, fromID, toID string, d database.Diff) error {
	fmt.Fprintf(out, "Comparing %s -> %s\n\n", fromID, toID)
	if d.Empty() {
		fmt.Fprintf(out, "No changes (%d resources unchanged)\n", d.Unchanged)
		return nil
	}

	section := func(title, marker string, urls []string) {
		if len(urls) == 0 {
			return
		}
		fmt.Fprintf(out, "%s (%d):\n", title, len(urls))
		for _, u := range urls {
			fmt.Fprintf(out, "  %s %s\n", marker, u)
		}
		fmt.Fprintln(out)
	}
	section("Added", "+", d.Added)
	section("Removed", "-", d.Removed)
	section("Changed", "~", d.Changed)

	_, err := fmt.Fprintf(out, "Unchanged: %d\n", d.Unchanged)
	return err
}

func writeDiffMarkdown(out io.Writer, fromID, toID string, d database.Diff) error {
	md := markdown.NewMarkdown(out)
	md.H1("Mirror Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"From", "`" + fromID + "`"},
			{"To", "`" + toID + "`"},
			{"Added", strconv.Itoa(len(d.Added))},
			{"Removed", strconv.Itoa(len(d.Removed))},
			{"Changed", strconv.Itoa(len(d.Changed))},
			{"Unchanged", strconv.Itoa(d.Unchanged)},
		},
	})
	md.PlainText("")

	for _, sec := range []struct {
		title string
		urls  []string
	}{
		{"Added", d.Added},
		{"Removed", d.Removed},
		{"Changed", d.Changed},
	} {
		if len(sec.urls) == 0 {
			continue
		}
		md.H2(sec.title)
		md.PlainText("")
		md.BulletList(sec.urls...)
		md.PlainText("")
	}

	return md.Build()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
