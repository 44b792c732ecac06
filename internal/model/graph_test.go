package model

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

// TestGraphAdd tests arena insertion and lookup.
func TestGraphAdd(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	a := g.Add("http://example.com/", 0, 0, true)
	b := g.Add("http://example.com/b.css", 0, 1, false)
	again := g.Add("http://example.com/", 3, 3, false)

	if a.ID != 0 || b.ID != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", a.ID, b.ID)
	}
	if again != a {
		t.Error("adding an existing URL should return the existing resource")
	}
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2", g.Len())
	}
	if got, ok := g.Lookup("http://example.com/b.css"); !ok || got != b {
		t.Error("Lookup did not return the stored resource")
	}
	if _, err := g.Get(7); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("Get(7) error = %v, want ErrResourceNotFound", err)
	}
	roots := g.Roots()
	if len(roots) != 1 || roots[0] != a {
		t.Errorf("Roots = %v, want [a]", roots)
	}
}

// TestGraphDiamond tests that a shared child records every parent.
func TestGraphDiamond(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	top := g.Add("http://example.com/", 0, 0, true)
	left := g.Add("http://example.com/left.css", 0, 1, false)
	right := g.Add("http://example.com/right.css", 0, 1, false)
	shared := g.Add("http://example.com/bg.png", 0, 2, false)

	Link(top, left)
	Link(top, right)
	Link(left, shared)
	Link(right, shared)
	Link(right, shared)

	if got := shared.Parents(); !reflect.DeepEqual(got, []int{left.ID, right.ID}) {
		t.Errorf("Parents = %v, want [%d %d]", got, left.ID, right.ID)
	}
	if got := right.Children(); !reflect.DeepEqual(got, []int{shared.ID}) {
		t.Errorf("Children = %v, want [%d]", got, shared.ID)
	}
	children, err := g.Children(top.ID)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 || children[0] != left || children[1] != right {
		t.Errorf("Children(top) = %v", children)
	}
}

// TestGraphConcurrentAdd tests that concurrent inserts of one URL yield one resource.
func TestGraphConcurrentAdd(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	var wg sync.WaitGroup
	results := make([]*Resource, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Add("http://example.com/same", 0, 0, false)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != results[0] {
			t.Fatal("concurrent Add returned different resources for one URL")
		}
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
}

// TestMirrorReportCollect tests snapshotting a graph into a report.
func TestMirrorReportCollect(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	page := g.Add("http://example.com/", 0, 0, true)
	_ = page.Fill("index.html", ContentTypeHTML, Content{Body: []byte("<html></html>")})
	img := g.Add("http://example.com/a.png", 0, 1, false)
	_ = img.Fill("images/a.png", ContentTypeBinary, Content{Body: []byte("png")})
	out := g.Add("http://other.com/", 1, 0, false)
	_ = out.MarkFiltered(errors.New("external host"))
	bad := g.Add("http://example.com/missing.css", 0, 1, false)
	_ = bad.MarkFailed(errors.New("404"))

	report := NewMirrorReport("sess", []string{"http://example.com/"})
	report.Collect(g)
	report.SetTitle("http://example.com/", "Home")
	report.Collect(g)

	if report.Stats.Total != 4 || report.Stats.Saved != 2 || report.Stats.Filtered != 1 || report.Stats.Failed != 1 {
		t.Errorf("stats = %+v", report.Stats)
	}
	if report.Stats.ByContentType["html"] != 1 || report.Stats.ByContentType["binary"] != 1 {
		t.Errorf("by content type = %v", report.Stats.ByContentType)
	}
	if report.Stats.Bytes != int64(len("<html></html>")+len("png")) {
		t.Errorf("bytes = %d", report.Stats.Bytes)
	}
	if got := report.WithStatus(StatusFailed); len(got) != 1 || got[0].Error != "404" {
		t.Errorf("failed = %+v", got)
	}
	if pages := report.Pages(); len(pages) != 1 || pages[0].Title != "Home" {
		t.Errorf("pages = %+v", pages)
	}
}
