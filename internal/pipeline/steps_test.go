package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/naming"
	"github.com/nao1215/sitemirror/internal/policy"
	"github.com/nao1215/sitemirror/internal/report"
)

// fakeTransport serves a fixed set of documents. URLs listed in block wait
// for the context to end.
type fakeTransport struct {
	docs  map[string]model.Content
	block map[string]bool
}

func (f *fakeTransport) Fetch(ctx context.Context, rawURL string) (model.Content, error) {
	if f.block[rawURL] {
		<-ctx.Done()
		return model.Content{}, ctx.Err()
	}
	c, ok := f.docs[rawURL]
	if !ok {
		return model.Content{}, errors.New("status 404")
	}
	c.StatusCode = 200
	return c, nil
}

func html(body string) model.Content {
	return model.Content{Body: []byte(body), MediaType: "text/html"}
}

// newTestSite returns a small site: a home page with a stylesheet, one
// internal and one external link.
func newTestSite() *fakeTransport {
	return &fakeTransport{
		docs: map[string]model.Content{
			"https://example.com/": html(`<html><head><title>Home</title>` +
				`<link rel="stylesheet" href="/style.css"></head>` +
				`<body><a href="/about">About</a> <a href="https://other.org/">Elsewhere</a></body></html>`),
			"https://example.com/about": html(`<html><head><title>About us</title></head><body>hi</body></html>`),
			"https://example.com/style.css": {
				Body:      []byte(`body { background: url(bg.png) }`),
				MediaType: "text/css",
			},
			"https://example.com/bg.png": {Body: []byte("PNG"), MediaType: "image/png"},
		},
	}
}

// TestNewMirrorStep tests the MirrorStep constructor.
func TestNewMirrorStep(t *testing.T) {
	t.Parallel()

	t.Run("creates step with defaults", func(t *testing.T) {
		t.Parallel()

		step := NewMirrorStep(newTestSite())
		if step.Name() != "mirror" {
			t.Errorf("expected name 'mirror', got %q", step.Name())
		}
		if step.strategy != naming.ByType {
			t.Errorf("expected by-type naming, got %q", step.strategy)
		}
		if step.timeout != 0 {
			t.Errorf("expected no timeout, got %v", step.timeout)
		}
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		step := NewMirrorStep(newTestSite(),
			WithMirrorNaming(naming.ByPath),
			WithMirrorTimeout(time.Minute),
			WithMirrorPolicy(policy.WithMaxDepth(1), policy.WithMaxPages(5)),
			WithMirrorLogger(nil),
		)
		if step.strategy != naming.ByPath || step.timeout != time.Minute {
			t.Errorf("options not applied: %+v", step)
		}
		if len(step.policyOpts) != 2 {
			t.Errorf("expected 2 policy options, got %d", len(step.policyOpts))
		}
	})
}

// TestMirrorStepDo tests mirroring through the step.
func TestMirrorStepDo(t *testing.T) {
	t.Parallel()

	t.Run("mirrors the site", func(t *testing.T) {
		t.Parallel()

		site := newTestSite()
		site.docs["http://example.com/"] = html("<title>plain</title>")

		rep := model.NewMirrorReport("", []string{"example.com"})
		if err := NewMirrorStep(site).Do(context.Background(), rep); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if rep.SessionID == "" {
			t.Error("expected session id")
		}
		if rep.Seeds[0] != "http://example.com/" {
			t.Errorf("seed not normalized: %q", rep.Seeds[0])
		}
		if rep.Graph == nil {
			t.Fatal("expected graph")
		}
		if rep.FinishedAt.IsZero() || rep.TimedOut {
			t.Errorf("unexpected completion state: finished=%v timedOut=%v", rep.FinishedAt, rep.TimedOut)
		}
	})

	t.Run("counts every outcome", func(t *testing.T) {
		t.Parallel()

		rep := model.NewMirrorReport("", []string{"https://example.com/"})
		if err := NewMirrorStep(newTestSite()).Do(context.Background(), rep); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := rep.Stats
		if s.Total != 5 || s.Saved != 4 || s.Filtered != 1 || s.Failed != 0 {
			t.Errorf("unexpected stats: %+v", s)
		}
		if s.ByContentType["html"] != 2 || s.ByContentType["css"] != 1 || s.ByContentType["binary"] != 1 {
			t.Errorf("unexpected content types: %v", s.ByContentType)
		}
	})

	t.Run("keeps partial result on timeout", func(t *testing.T) {
		t.Parallel()

		site := newTestSite()
		site.block = map[string]bool{"https://example.com/bg.png": true}

		rep := model.NewMirrorReport("", []string{"https://example.com/"})
		step := NewMirrorStep(site, WithMirrorTimeout(100*time.Millisecond))
		if err := step.Do(context.Background(), rep); err != nil {
			t.Fatalf("timeout should not fail the step: %v", err)
		}

		if !rep.TimedOut {
			t.Error("expected TimedOut")
		}
		if rep.Stats.Saved < 1 {
			t.Errorf("expected the seed to be saved, got %+v", rep.Stats)
		}
	})

	t.Run("fails when no seed is mirrored", func(t *testing.T) {
		t.Parallel()

		rep := model.NewMirrorReport("", []string{"https://missing.example/"})
		err := NewMirrorStep(&fakeTransport{}).Do(context.Background(), rep)
		if !errors.Is(err, ErrNothingMirrored) {
			t.Errorf("expected ErrNothingMirrored, got %v", err)
		}
		if rep.Stats.Failed != 1 {
			t.Errorf("expected 1 failed resource, got %d", rep.Stats.Failed)
		}
	})

	t.Run("rejects invalid seeds", func(t *testing.T) {
		t.Parallel()

		rep := model.NewMirrorReport("", []string{"ftp://example.com/"})
		if err := NewMirrorStep(newTestSite()).Do(context.Background(), rep); err == nil {
			t.Error("expected error for ftp seed")
		}
	})
}

// TestExportStepDo tests writing the mirror to disk.
func TestExportStepDo(t *testing.T) {
	t.Parallel()

	t.Run("requires a graph", func(t *testing.T) {
		t.Parallel()

		err := NewExportStep(t.TempDir()).Do(context.Background(), model.NewMirrorReport("", nil))
		if !errors.Is(err, ErrNoGraph) {
			t.Errorf("expected ErrNoGraph, got %v", err)
		}
	})

	t.Run("writes per host directory", func(t *testing.T) {
		t.Parallel()

		rep := model.NewMirrorReport("", []string{"https://example.com/"})
		if err := NewMirrorStep(newTestSite()).Do(context.Background(), rep); err != nil {
			t.Fatalf("mirror error: %v", err)
		}

		root := t.TempDir()
		if err := NewExportStep(root, WithExportPerHost(true)).Do(context.Background(), rep); err != nil {
			t.Fatalf("export error: %v", err)
		}

		if rep.OutputDir != filepath.Join(root, "example.com") {
			t.Errorf("OutputDir = %q", rep.OutputDir)
		}
		if rep.Stats.FilesWritten != 4 {
			t.Errorf("FilesWritten = %d, want 4", rep.Stats.FilesWritten)
		}

		index, err := os.ReadFile(filepath.Join(rep.OutputDir, "index.html"))
		if err != nil {
			t.Fatalf("index.html not written: %v", err)
		}
		if !strings.Contains(string(index), `href="css/style.css"`) {
			t.Errorf("stylesheet reference not rewritten: %s", index)
		}
		if !strings.Contains(string(index), `href="https://other.org/"`) {
			t.Errorf("filtered reference should stay absolute: %s", index)
		}
		if _, err := os.Stat(filepath.Join(rep.OutputDir, "images", "bg.png")); err != nil {
			t.Errorf("image not written: %v", err)
		}
	})
}

// TestDefaultPipelineRun tests the complete pipeline.
func TestDefaultPipelineRun(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	var out bytes.Buffer
	p := DefaultPipeline(newTestSite(), nil,
		WithPipelineOutputDir(t.TempDir()),
		WithPipelineDatabase(db),
		WithPipelineWriter(report.NewSimpleWriter(&out)),
	)

	rep := model.NewMirrorReport("", []string{"https://example.com/"})
	if err := p.Execute(context.Background(), rep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Error != "" {
		t.Fatalf("unexpected report error: %s", rep.Error)
	}

	stored, err := db.GetReport(context.Background(), rep.SessionID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.Stats.FilesWritten != 4 {
		t.Errorf("stored FilesWritten = %d, want 4", stored.Stats.FilesWritten)
	}

	titles := make(map[string]string)
	for _, rec := range stored.Pages() {
		titles[rec.URL] = rec.Title
	}
	if titles["https://example.com/"] != "Home" || titles["https://example.com/about"] != "About us" {
		t.Errorf("unexpected titles: %v", titles)
	}

	if !strings.Contains(out.String(), "Title: About us") {
		t.Errorf("report missing page title:\n%s", out.String())
	}
}

// TestDefaultPipelineInterrupted tests that an interrupted session is still
// exported and recorded.
func TestDefaultPipelineInterrupted(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	site := newTestSite()
	site.block = map[string]bool{"https://example.com/bg.png": true}

	outDir := t.TempDir()
	p := DefaultPipeline(site, nil,
		WithPipelineOutputDir(outDir),
		WithPipelineDatabase(db),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	rep := model.NewMirrorReport("", []string{"https://example.com/"})
	if err := p.Execute(ctx, rep); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "index.html")); err != nil {
		t.Errorf("seed page should be exported after the interrupt: %v", err)
	}

	stored, err := db.GetReport(context.Background(), rep.SessionID)
	if err != nil {
		t.Fatalf("interrupted session not persisted: %v", err)
	}
	if !stored.TimedOut {
		t.Error("stored session should be marked as cut short")
	}

	for _, step := range rep.Steps {
		if step.Skipped {
			t.Errorf("no step should be skipped, got %+v", step)
		}
	}
}

// TestReportStep tests the report step.
func TestReportStep(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	step := NewReportStep(report.NewJSONWriter(&buf))
	if step.Name() != "report" {
		t.Errorf("expected name 'report', got %q", step.Name())
	}

	if err := step.Do(context.Background(), model.NewMirrorReport("abc", []string{"https://example.com/"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"session_id":"abc"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
