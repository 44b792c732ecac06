package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemirror/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.MirrorReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeFailed(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the session information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.MirrorReport) {
	md.H1("sitemirror Report")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Seeds)+4)
	for _, seed := range report.Seeds {
		rows = append(rows, []string{"Seed", "`" + seed + "`"})
	}
	rows = append(rows,
		[]string{"Session", report.SessionID},
		[]string{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Duration", report.Duration().Round(time.Millisecond).String()},
	)
	if report.OutputDir != "" {
		rows = append(rows, []string{"Output", "`" + report.OutputDir + "`"})
	}
	rows = append(rows, []string{"Status", w.getStatusText(report)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.MirrorReport) string {
	if report.Error != "" {
		return "❌ Error - " + report.Error
	}
	if report.TimedOut {
		return "⚠️ Timed Out (partial mirror)"
	}
	return "✅ Complete"
}

// writeSummary writes the count table, the content type chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.MirrorReport) {
	md.H2("Summary")
	md.PlainText("")

	s := report.Stats
	rows := [][]string{
		{"Discovered", strconv.Itoa(s.Total)},
		{"Saved", strconv.Itoa(s.Saved)},
		{"Filtered", strconv.Itoa(s.Filtered)},
		{"Failed", strconv.Itoa(s.Failed)},
	}
	if s.Pending > 0 {
		rows = append(rows, []string{"Pending", strconv.Itoa(s.Pending)})
	}
	rows = append(rows, []string{"**Size**", "**" + FormatBytes(s.Bytes) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Resources", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(s.ByContentType) > 0 {
		w.writePieChart(md, s.ByContentType)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of saved content types.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, byType map[string]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Saved Content Types"),
		piechart.WithShowData(true),
	)

	for _, ct := range sortedKeys(byType) {
		chart.LabelAndIntValue(ct, uint64(byType[ct])) //nolint:gosec // counts are never negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert describing how complete the mirror is.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.MirrorReport) {
	switch {
	case report.Error != "":
		md.Cautionf("The session failed: %s", report.Error)
	case report.TimedOut:
		md.Cautionf("The session timed out. %d resource(s) were left unresolved.", report.Stats.Pending)
	case report.Stats.Failed > 0:
		md.Warningf("%d resource(s) could not be fetched. References to them point to the original site.", report.Stats.Failed)
	case report.Stats.Saved == 0:
		md.Note("Nothing was saved.")
	default:
		md.Tip("Every admitted resource was mirrored.")
	}
	md.PlainText("")
}

// writeFailed writes the failed URLs with their reasons.
func (w *MarkdownWriter) writeFailed(md *markdown.Markdown, report *model.MirrorReport) {
	failed := report.WithStatus(model.StatusFailed)
	if len(failed) == 0 {
		return
	}

	md.H2("Failed")
	md.PlainText("")

	rows := make([][]string, len(failed))
	for i, rec := range failed {
		reason := rec.Error
		if reason == "" {
			reason = "-"
		}
		rows[i] = []string{truncateString(rec.URL, 80), truncateString(reason, 80)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePages writes the saved HTML pages.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.MirrorReport) {
	md.H2("Pages")
	md.PlainText("")

	pages := report.Pages()
	if len(pages) == 0 {
		md.PlainText("No pages saved.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(pages))
	for i, rec := range pages {
		title := rec.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			truncateString(title, 60),
			truncateString(rec.URL, 80),
			"`" + rec.LocalPath + "`",
			strconv.Itoa(rec.Depth),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Title", "URL", "File", "Depth"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemirror](https://github.com/nao1215/sitemirror)*")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
