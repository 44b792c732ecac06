package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it works in every terminal and pipes cleanly to
// files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose adds filtered URLs and per-page details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.MirrorReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeContentTypes(&sb, report)
	w.writeFailed(&sb, report)
	w.writePages(&sb, report)
	if w.verbose {
		w.writeFiltered(&sb, report)
		w.writeSteps(&sb, report)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func writeRule(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with session information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.MirrorReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SITEMIRROR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	for _, seed := range report.Seeds {
		fmt.Fprintf(sb, "Seed:           %s\n", seed)
	}
	fmt.Fprintf(sb, "Session:        %s\n", report.SessionID)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	if report.OutputDir != "" {
		fmt.Fprintf(sb, "Output:         %s\n", report.OutputDir)
	}
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

// writeSummary writes the resource counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.MirrorReport) {
	writeRule(sb, "SUMMARY")

	s := report.Stats
	fmt.Fprintf(sb, "  DISCOVERED: %d\n", s.Total)
	fmt.Fprintf(sb, "  SAVED:      %d (%s)\n", s.Saved, FormatBytes(s.Bytes))
	fmt.Fprintf(sb, "  FILTERED:   %d\n", s.Filtered)
	fmt.Fprintf(sb, "  FAILED:     %d\n", s.Failed)
	if s.Pending > 0 {
		fmt.Fprintf(sb, "  PENDING:    %d\n", s.Pending)
	}
	if report.OutputDir != "" {
		fmt.Fprintf(sb, "  WRITTEN:    %d files\n", s.FilesWritten)
	}
	sb.WriteString("\n")
}

// writeContentTypes writes saved resources per content type.
func (w *SimpleWriter) writeContentTypes(sb *strings.Builder, report *model.MirrorReport) {
	if len(report.Stats.ByContentType) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "CONTENT TYPES")

	if len(report.Stats.ByContentType) == 0 {
		sb.WriteString("  Nothing saved\n\n")
		return
	}
	for _, ct := range sortedKeys(report.Stats.ByContentType) {
		fmt.Fprintf(sb, "  %-8s %d\n", ct, report.Stats.ByContentType[ct])
	}
	sb.WriteString("\n")
}

// writeFailed writes every failed URL with its reason.
func (w *SimpleWriter) writeFailed(sb *strings.Builder, report *model.MirrorReport) {
	failed := report.WithStatus(model.StatusFailed)
	if len(failed) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "FAILED")

	if len(failed) == 0 {
		sb.WriteString("  No failures\n\n")
		return
	}
	for _, rec := range failed {
		fmt.Fprintf(sb, "  [!] %s\n", rec.URL)
		if rec.Error != "" {
			fmt.Fprintf(sb, "      Reason: %s\n", rec.Error)
		}
	}
	sb.WriteString("\n")
}

// writePages writes the saved HTML pages.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.MirrorReport) {
	pages := report.Pages()
	if len(pages) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "PAGES")

	if len(pages) == 0 {
		sb.WriteString("  No pages saved\n\n")
		return
	}
	for _, rec := range pages {
		fmt.Fprintf(sb, "  [+] %s\n", rec.URL)
		if rec.Title != "" {
			fmt.Fprintf(sb, "      Title: %s\n", rec.Title)
		}
		if w.verbose {
			fmt.Fprintf(sb, "      File:  %s\n", rec.LocalPath)
			fmt.Fprintf(sb, "      Depth: %d\n", rec.Depth)
		}
	}
	sb.WriteString("\n")
}

// writeFiltered writes URLs rejected by the admission policy.
func (w *SimpleWriter) writeFiltered(sb *strings.Builder, report *model.MirrorReport) {
	filtered := report.WithStatus(model.StatusFiltered)
	if len(filtered) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "FILTERED")

	if len(filtered) == 0 {
		sb.WriteString("  Nothing filtered\n\n")
		return
	}
	for _, rec := range filtered {
		fmt.Fprintf(sb, "  [-] %s\n", rec.URL)
	}
	sb.WriteString("\n")
}

// writeSteps writes the pipeline steps with their timing.
func (w *SimpleWriter) writeSteps(sb *strings.Builder, report *model.MirrorReport) {
	if len(report.Steps) == 0 {
		return
	}

	writeRule(sb, "STEPS")

	for _, step := range report.Steps {
		switch {
		case step.Skipped:
			fmt.Fprintf(sb, "  %-10s skipped\n", step.Name)
		case step.Error != "":
			fmt.Fprintf(sb, "  %-10s %s  error: %s\n", step.Name, step.Duration.Round(time.Millisecond), step.Error)
		default:
			fmt.Fprintf(sb, "  %-10s %s\n", step.Name, step.Duration.Round(time.Millisecond))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitemirror\n")
	sb.WriteString("https://github.com/nao1215/sitemirror\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
