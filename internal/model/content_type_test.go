package model

import "testing"

// TestDetectContentType tests classification from headers and extensions.
func TestDetectContentType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		mediaType string
		url       string
		expected  ContentType
	}{
		{"html header", "text/html; charset=utf-8", "http://example.com/a.png", ContentTypeHTML},
		{"xhtml header", "application/xhtml+xml", "http://example.com/", ContentTypeHTML},
		{"css header", "text/css", "http://example.com/x", ContentTypeCSS},
		{"image header", "image/png", "http://example.com/a.css", ContentTypeBinary},
		{"missing header css ext", "", "http://example.com/site.css?v=2", ContentTypeCSS},
		{"plain text css ext", "text/plain", "http://example.com/site.CSS", ContentTypeCSS},
		{"octet stream no ext", "application/octet-stream", "http://example.com/about", ContentTypeHTML},
		{"missing header root", "", "http://example.com", ContentTypeHTML},
		{"missing header font", "", "http://example.com/f.woff2", ContentTypeBinary},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectContentType(tc.mediaType, tc.url); got != tc.expected {
				t.Errorf("DetectContentType(%q, %q) = %v, want %v", tc.mediaType, tc.url, got, tc.expected)
			}
		})
	}
}

// TestStatusString tests status names and round trips.
func TestStatusString(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusPending, StatusFetched, StatusFiltered, StatusFailed, StatusHandlerRunning, StatusDone} {
		if ParseStatus(s.String()) != s {
			t.Errorf("ParseStatus(%q) != %v", s.String(), s)
		}
	}
	if Status(99).String() != unknownStr {
		t.Errorf("Status(99).String() = %q", Status(99).String())
	}
	if !StatusDone.IsTerminal() || StatusFetched.IsTerminal() {
		t.Error("IsTerminal mismatch")
	}
	for _, ct := range []ContentType{ContentTypeBinary, ContentTypeHTML, ContentTypeCSS} {
		if ParseContentType(ct.String()) != ct {
			t.Errorf("ParseContentType(%q) != %v", ct.String(), ct)
		}
	}
}

// TestGroup tests merging single occurrences into distinct references.
func TestGroup(t *testing.T) {
	t.Parallel()

	found := []Reference{
		{Raw: "a.html", Kind: KindNavigation, Occurrences: []Occurrence{{Start: 1, End: 7}}},
		{Raw: "b.png", Kind: KindAsset, Occurrences: []Occurrence{{Start: 10, End: 15}}},
		{Raw: "a.html", Kind: KindAsset, Occurrences: []Occurrence{{Start: 20, End: 26}}},
	}

	grouped := Group(found)
	if len(grouped) != 2 {
		t.Fatalf("len = %d, want 2", len(grouped))
	}
	if grouped[0].Raw != "a.html" || len(grouped[0].Occurrences) != 2 || grouped[0].Kind != KindAsset {
		t.Errorf("grouped[0] = %+v", grouped[0])
	}
	if grouped[1].Raw != "b.png" {
		t.Errorf("grouped[1] = %+v", grouped[1])
	}
}
