package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*MirrorDB, func()) {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db, cleanup
}

// testReport builds a report for seed with one record per url/sha pair.
func testReport(id, seed string, started time.Time, saved map[string]string) *model.MirrorReport {
	r := model.NewMirrorReport(id, []string{seed})
	r.StartedAt = started
	r.FinishedAt = started.Add(time.Minute)
	r.OutputDir = "/tmp/mirror"

	for u, sum := range saved {
		r.Resources = append(r.Resources, model.ResourceRecord{
			URL:         u,
			LocalPath:   filepath.Base(u),
			ContentType: "html",
			Status:      model.StatusDone.String(),
			Size:        10,
			SHA256:      sum,
		})
		r.Stats.Saved++
		r.Stats.Total++
	}
	r.Resources = append(r.Resources, model.ResourceRecord{
		URL:    "http://other.com/",
		Status: model.StatusFiltered.String(),
		Error:  "filtered by admission policy",
	})
	r.Stats.Total++
	r.Stats.Filtered++
	return r
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails for missing database", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrNoDatabase) {
			t.Errorf("expected ErrNoDatabase, got %v", err)
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

// TestSaveAndGetReport tests the report round trip.
func TestSaveAndGetReport(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := testReport("s1", "https://Example.com/", started, map[string]string{
		"https://example.com/": "aaa",
	})

	if err := db.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport error: %v", err)
	}

	got, err := db.GetReport(ctx, "s1")
	if err != nil {
		t.Fatalf("GetReport error: %v", err)
	}
	if got.SessionID != "s1" || len(got.Resources) != 2 || got.Stats.Filtered != 1 {
		t.Errorf("unexpected report: %+v", got)
	}

	records, err := db.Resources(ctx, "s1")
	if err != nil {
		t.Fatalf("Resources error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].URL != "https://example.com/" || records[1].SHA256 != "aaa" {
		t.Errorf("unexpected record: %+v", records[1])
	}
	if records[0].Error == "" {
		t.Error("filtered record lost its error")
	}

	// Saving again replaces the rows instead of duplicating them.
	report.Stats.Saved = 5
	if err := db.SaveReport(ctx, report); err != nil {
		t.Fatalf("second SaveReport error: %v", err)
	}
	records, err = db.Resources(ctx, "s1")
	if err != nil {
		t.Fatalf("Resources error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records after resave, want 2", len(records))
	}

	if _, err := db.GetReport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestListSessions tests history queries.
func TestListSessions(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reports := []*model.MirrorReport{
		testReport("old", "https://example.com/", base, nil),
		testReport("new", "https://example.com/docs/", base.Add(time.Hour+500*time.Millisecond), nil),
		testReport("mid", "https://example.com/", base.Add(time.Hour), nil),
		testReport("other", "http://blog.example.org/", base, nil),
	}
	for _, r := range reports {
		if err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport(%s) error: %v", r.SessionID, err)
		}
	}

	sessions, err := db.ListSessions(ctx, "EXAMPLE.com")
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	var ids []string
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	if len(ids) != 3 || ids[0] != "new" || ids[1] != "mid" || ids[2] != "old" {
		t.Errorf("sessions = %v, want [new mid old]", ids)
	}
	if !sessions[2].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", sessions[2].StartedAt, base)
	}
	if sessions[0].Seeds[0] != "https://example.com/docs/" || sessions[0].Filtered != 1 {
		t.Errorf("unexpected summary: %+v", sessions[0])
	}

	all, err := db.ListSessions(ctx, "")
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d sessions, want 4", len(all))
	}

	latest, err := db.LatestSession(ctx, "blog.example.org")
	if err != nil || latest.ID != "other" {
		t.Errorf("LatestSession = %+v, %v", latest, err)
	}
	if _, err := db.LatestSession(ctx, "nowhere.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	hosts, err := db.ListHosts(ctx)
	if err != nil {
		t.Fatalf("ListHosts error: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "blog.example.org" || hosts[1] != "example.com" {
		t.Errorf("hosts = %v", hosts)
	}
}

// TestCompare tests diffing two sessions.
func TestCompare(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := testReport("first", "https://example.com/", base, map[string]string{
		"https://example.com/":          "a",
		"https://example.com/about":     "b",
		"https://example.com/old.html":  "c",
		"https://example.com/style.css": "d",
	})
	second := testReport("second", "https://example.com/", base.Add(time.Hour), map[string]string{
		"https://example.com/":          "a",
		"https://example.com/about":     "B",
		"https://example.com/new.html":  "e",
		"https://example.com/style.css": "d",
	})
	for _, r := range []*model.MirrorReport{first, second} {
		if err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport error: %v", err)
		}
	}

	d, err := db.Compare(ctx, "first", "second")
	if err != nil {
		t.Fatalf("Compare error: %v", err)
	}
	if len(d.Added) != 1 || d.Added[0] != "https://example.com/new.html" {
		t.Errorf("Added = %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "https://example.com/old.html" {
		t.Errorf("Removed = %v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "https://example.com/about" {
		t.Errorf("Changed = %v", d.Changed)
	}
	if d.Unchanged != 2 || d.Empty() {
		t.Errorf("Unchanged = %d, Empty = %v", d.Unchanged, d.Empty())
	}

	same, err := db.Compare(ctx, "first", "first")
	if err != nil || !same.Empty() {
		t.Errorf("self compare = %+v, %v", same, err)
	}

	if _, err := db.Compare(ctx, "first", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestParseTimestamp tests timestamp parsing.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	for _, s := range []string{
		formatTimestamp(want),
		"2026-03-01 12:30:45",
		"2026-03-01T12:30:45Z",
		"2026-03-01T12:30:45",
	} {
		if got := parseTimestamp(s); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", s, got, want)
		}
	}
	if !parseTimestamp("garbage").IsZero() || formatTimestamp(time.Time{}) != "" {
		t.Error("zero handling mismatch")
	}
}
