package model

// Kind tells how a reference is used by the resource that contains it.
type Kind int

const (
	// KindAsset is content embedded into the referring document
	// (stylesheets, images, scripts, fonts, imported stylesheets).
	KindAsset Kind = iota

	// KindNavigation is a link to another document (a, area, iframe, frame).
	// Crawl depth only grows across navigation references.
	KindNavigation
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindNavigation {
		return "navigation"
	}
	return "asset"
}

// Occurrence is one place in a resource's text where a reference appears.
//
// Start and End delimit the reference value itself. Prefix and Suffix are the
// literal text around it (for example `url("` and `")`, or `@import '` and
// `'`), so a rewrite replaces only [Start, End) and the delimiters survive
// byte for byte.
type Occurrence struct {
	// Start is the byte offset of the first byte of the value.
	Start int

	// End is the byte offset just past the value.
	End int

	// Prefix is the literal text immediately before the value.
	Prefix string

	// Suffix is the literal text immediately after the value.
	Suffix string

	// Entity is true when the value sits in an HTML attribute and must be
	// written back entity-escaped.
	Entity bool
}

// Quote returns the quote character around the value, or "" for the
// bareword form.
func (o Occurrence) Quote() string {
	if o.Prefix == "" {
		return ""
	}
	switch last := o.Prefix[len(o.Prefix)-1]; last {
	case '"', '\'':
		return string(last)
	default:
		return ""
	}
}

// Reference is one distinct raw reference found in a resource, with every
// place it occurs. Two occurrences belong to the same Reference only if their
// raw values are identical.
type Reference struct {
	// Raw is the reference exactly as written, after HTML entity decoding.
	Raw string

	// Kind is how the reference is used. When the same raw value is used both
	// as an asset and as a link, it is an asset.
	Kind Kind

	// Base overrides the referring resource's URL for resolution
	// (set from an HTML <base href>).
	Base string

	// Occurrences lists the spans in source order.
	Occurrences []Occurrence
}

// Group merges a source-ordered list of single-occurrence references into
// distinct references, ordered by first occurrence.
func Group(found []Reference) []Reference {
	index := make(map[string]int, len(found))
	grouped := make([]Reference, 0, len(found))

	for _, ref := range found {
		i, ok := index[ref.Raw]
		if !ok {
			index[ref.Raw] = len(grouped)
			grouped = append(grouped, Reference{
				Raw:         ref.Raw,
				Kind:        ref.Kind,
				Base:        ref.Base,
				Occurrences: append([]Occurrence(nil), ref.Occurrences...),
			})
			continue
		}
		if ref.Kind == KindAsset {
			grouped[i].Kind = KindAsset
		}
		grouped[i].Occurrences = append(grouped[i].Occurrences, ref.Occurrences...)
	}

	return grouped
}

// Candidate describes a discovered URL submitted to the admission policy.
type Candidate struct {
	// URL is the absolute, normalized URL.
	URL string

	// ParentURL is the URL of the referring resource; empty for seeds.
	ParentURL string

	// Depth is the number of navigation hops from the nearest seed.
	Depth int

	// AssetDepth is the number of consecutive asset hops
	// (a stylesheet imported by a stylesheet has AssetDepth 2).
	AssetDepth int

	// Kind is how the referring resource uses the URL.
	Kind Kind
}

// IsSeed reports whether the candidate is a crawl entry point.
func (c Candidate) IsSeed() bool {
	return c.ParentURL == ""
}

// Content is what a transport returns for one URL.
type Content struct {
	// Body is the decoded response body.
	Body []byte

	// MediaType is the Content-Type header value.
	MediaType string

	// StatusCode is the HTTP status code.
	StatusCode int

	// FinalURL is the URL after redirects.
	FinalURL string
}
