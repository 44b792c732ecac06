package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// createTestReport creates a report with a small mirrored graph.
func createTestReport(t *testing.T) *model.MirrorReport {
	t.Helper()

	g := model.NewGraph()
	fill := func(rawURL, localPath string, ct model.ContentType, body string) {
		res := g.Add(rawURL, 0, 0, false)
		if err := res.Fill(localPath, ct, model.Content{Body: []byte(body), StatusCode: 200}); err != nil {
			t.Fatalf("Fill(%s) error: %v", rawURL, err)
		}
	}

	fill("https://example.com/", "index.html", model.ContentTypeHTML,
		"<html><head><title>\n  Example\n  Home </title></head><body>hi</body></html>")
	fill("https://example.com/about", "about.html", model.ContentTypeHTML, "<p>no title</p>")
	fill("https://example.com/site.css", "css/site.css", model.ContentTypeCSS, "body{}")
	fill("https://example.com/logo.png", "images/logo.png", model.ContentTypeBinary, "PNG")

	failed := g.Add("https://example.com/broken", 1, 0, false)
	_ = failed.MarkFailed(errors.New("status 404"))
	filtered := g.Add("https://other.example.org/", 1, 0, false)
	_ = filtered.MarkFiltered(errors.New("filtered by admission policy"))

	report := model.NewMirrorReport("session-1", []string{"https://example.com/"})
	report.StartedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report.FinishedAt = report.StartedAt.Add(1500 * time.Millisecond)
	report.OutputDir = "/tmp/example"
	report.Collect(g)
	report.Stats.FilesWritten = 4

	return report
}

// TestExtractTitles tests page title collection.
func TestExtractTitles(t *testing.T) {
	t.Parallel()

	report := createTestReport(t)
	if n := ExtractTitles(report); n != 1 {
		t.Fatalf("ExtractTitles = %d, want 1", n)
	}

	pages := report.Pages()
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].Title != "Example Home" {
		t.Errorf("title = %q, want %q", pages[0].Title, "Example Home")
	}
	if pages[1].Title != "" {
		t.Errorf("untitled page got %q", pages[1].Title)
	}

	if ExtractTitles(model.NewMirrorReport("x", nil)) != 0 {
		t.Error("report without graph should yield no titles")
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := createTestReport(t)
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"SITEMIRROR REPORT",
			"Seed:           https://example.com/",
			"Duration:       1.5s",
			"Status:         Complete",
			"SAVED:      4 (",
			"FILTERED:   1",
			"FAILED:     1",
			"WRITTEN:    4 files",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("lists failures with reasons", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[!] https://example.com/broken") {
			t.Error("expected failed URL")
		}
		if !strings.Contains(output, "Reason: status 404") {
			t.Error("expected failure reason")
		}
	})

	t.Run("filtered section only when verbose", func(t *testing.T) {
		t.Parallel()

		var quiet, verbose bytes.Buffer
		report := createTestReport(t)
		if _, err := NewSimpleWriter(&quiet).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := NewSimpleWriter(&verbose, WithVerbose(true)).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if strings.Contains(quiet.String(), "FILTERED\n") {
			t.Error("filtered section should be hidden by default")
		}
		if !strings.Contains(verbose.String(), "[-] https://other.example.org/") {
			t.Error("verbose output should list filtered URLs")
		}
		if !strings.Contains(verbose.String(), "File:  index.html") {
			t.Error("verbose output should show local paths")
		}
	})

	t.Run("steps section only when verbose", func(t *testing.T) {
		t.Parallel()

		report := createTestReport(t)
		report.Steps = []model.StepRecord{
			{Name: "mirror", Duration: 1500 * time.Millisecond},
			{Name: "export", Duration: time.Millisecond, Error: "disk full"},
			{Name: "persist", Skipped: true},
		}

		var quiet, verbose bytes.Buffer
		if _, err := NewSimpleWriter(&quiet).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := NewSimpleWriter(&verbose, WithVerbose(true)).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if strings.Contains(quiet.String(), "STEPS\n") {
			t.Error("steps section should be hidden by default")
		}
		for _, want := range []string{"mirror     1.5s", "error: disk full", "persist    skipped"} {
			if !strings.Contains(verbose.String(), want) {
				t.Errorf("verbose output should contain %q:\n%s", want, verbose.String())
			}
		}
	})

	t.Run("empty sections", func(t *testing.T) {
		t.Parallel()

		report := model.NewMirrorReport("empty", []string{"https://example.com/"})

		var hidden, shown bytes.Buffer
		if _, err := NewSimpleWriter(&hidden).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := NewSimpleWriter(&shown, WithShowEmpty(true)).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if strings.Contains(hidden.String(), "No pages saved") {
			t.Error("empty sections should be hidden by default")
		}
		for _, want := range []string{"Nothing saved", "No failures", "No pages saved"} {
			if !strings.Contains(shown.String(), want) {
				t.Errorf("expected %q with WithShowEmpty", want)
			}
		}
	})

	t.Run("status lines", func(t *testing.T) {
		t.Parallel()

		report := createTestReport(t)
		report.TimedOut = true
		if got := statusText(report); !strings.Contains(got, "TIMED OUT") {
			t.Errorf("statusText = %q", got)
		}
		report.Error = "boom"
		if got := statusText(report); got != "ERROR - boom" {
			t.Errorf("statusText = %q", got)
		}
	})
}

// TestJSONWriter tests the JSON report writers.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.MirrorReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.SessionID != "session-1" || decoded.Stats.Saved != 4 {
			t.Errorf("unexpected decoded report: %+v", decoded.Stats)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("compact output should be a single line")
		}
	})

	t.Run("indented output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).Write(createTestReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n>\t\"session_id\"") {
			t.Error("expected prefix and tab indentation")
		}
	})

	t.Run("full writer wraps version", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewFullJSONWriter(&buf, "v1.2.3", WithPrettyPrint()).Write(createTestReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var wrapped JSONReport
		if err := json.Unmarshal(buf.Bytes(), &wrapped); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if wrapped.Version != "v1.2.3" || wrapped.Report == nil || wrapped.Report.SessionID != "session-1" {
			t.Errorf("unexpected wrapper: %+v", wrapped)
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("complete session", func(t *testing.T) {
		t.Parallel()

		report := createTestReport(t)
		ExtractTitles(report)

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# sitemirror Report",
			"`https://example.com/`",
			"## Summary",
			"```mermaid",
			"Saved Content Types",
			"[!WARNING]",
			"## Failed",
			"status 404",
			"## Pages",
			"Example Home",
			"`index.html`",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("alerts", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			name   string
			mutate func(*model.MirrorReport)
			want   string
		}{
			{"error", func(r *model.MirrorReport) { r.Error = "boom" }, "[!CAUTION]"},
			{"timeout", func(r *model.MirrorReport) { r.TimedOut = true }, "[!CAUTION]"},
			{"all saved", func(r *model.MirrorReport) { r.Stats.Failed = 0 }, "[!TIP]"},
			{"nothing saved", func(r *model.MirrorReport) { r.Stats.Failed = 0; r.Stats.Saved = 0 }, "[!NOTE]"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				report := createTestReport(t)
				tc.mutate(report)

				var buf bytes.Buffer
				if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !strings.Contains(buf.String(), tc.want) {
					t.Errorf("expected %s alert", tc.want)
				}
			})
		}
	})

	t.Run("no pages", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(model.NewMirrorReport("e", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No pages saved.") {
			t.Error("expected empty pages notice")
		}
	})
}

// TestNewWriter tests format selection.
func TestNewWriter(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		format string
		want   any
	}{
		{"", &SimpleWriter{}},
		{"text", &SimpleWriter{}},
		{"Markdown", &MarkdownWriter{}},
		{"md", &MarkdownWriter{}},
		{"json", &FullJSONWriter{}},
	}

	for _, tc := range testCases {
		w, err := NewWriter(tc.format, &bytes.Buffer{}, "dev", false)
		if err != nil {
			t.Fatalf("NewWriter(%q) error: %v", tc.format, err)
		}
		switch tc.want.(type) {
		case *SimpleWriter:
			if _, ok := w.(*SimpleWriter); !ok {
				t.Errorf("NewWriter(%q) = %T", tc.format, w)
			}
		case *MarkdownWriter:
			if _, ok := w.(*MarkdownWriter); !ok {
				t.Errorf("NewWriter(%q) = %T", tc.format, w)
			}
		case *FullJSONWriter:
			if _, ok := w.(*FullJSONWriter); !ok {
				t.Errorf("NewWriter(%q) = %T", tc.format, w)
			}
		}
	}

	if _, err := NewWriter("xml", &bytes.Buffer{}, "dev", false); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

	n, err := mw.Write(createTestReport(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+js.Len() {
		t.Errorf("n = %d, want %d", n, text.Len()+js.Len())
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("both writers should receive output")
	}
}

// TestFormatBytes tests size rendering.
func TestFormatBytes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tc := range testCases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestTruncateString tests the string truncation helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tc := range testCases {
		if got := truncateString(tc.input, tc.maxLen); got != tc.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.want)
		}
	}
}
