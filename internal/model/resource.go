package model

import (
	"fmt"
	"html"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Resource is one node of the crawl graph: a URL, the local path it will be
// stored at, its content and its links to other resources.
//
// ID, URL, Depth and AssetDepth are fixed when the resource is created.
// Everything else is guarded by an internal lock, because the goroutines
// resolving a resource's children rewrite its text concurrently.
//
// Design decision: Textual content is stored as the original source plus a set
// of span edits instead of being rewritten in place because:
//  1. Extractor spans stay valid no matter how many references were rewritten
//  2. Rewriting the same span twice is detectable, making UpdateChild idempotent
//  3. Edits never overlap, so the rendered text does not depend on edit order
type Resource struct {
	// ID is the index of the resource in its Graph. Resources created outside
	// a graph have distinct negative ids.
	ID int

	// URL is the absolute, normalized URL. It is the dedup key.
	URL string

	// Depth is the number of navigation hops from the nearest seed.
	Depth int

	// AssetDepth is the number of consecutive asset hops leading here.
	AssetDepth int

	mu          sync.RWMutex
	localPath   string
	contentType ContentType
	mediaType   string
	finalURL    string
	status      Status
	failure     error
	source      string
	data        []byte
	edits       map[int]edit
	parents     map[int]struct{}
	children    []int
}

// edit replaces source[start:end] with text. It is keyed by start.
type edit struct {
	end  int
	text string
}

// standaloneIDs hands out ids to resources created outside a graph.
var standaloneIDs atomic.Int64

// NewResource creates a standalone resource that is already Fetched with an
// empty body. The content type is guessed from the local path, then the URL.
// It is mostly useful for collaborators that fabricate resources and for tests;
// the mirror creates resources through Graph.
func NewResource(rawURL, localPath string) *Resource {
	ct := contentTypeFromExtension(localPath)
	if path.Ext(localPath) == "" {
		ct = contentTypeFromExtension(rawURL)
	}
	return &Resource{
		ID:          -int(standaloneIDs.Add(1)),
		URL:         rawURL,
		localPath:   localPath,
		contentType: ct,
		status:      StatusFetched,
		edits:       make(map[int]edit),
		parents:     make(map[int]struct{}),
	}
}

// newPendingResource creates the Pending record inserted on first discovery.
func newPendingResource(id int, rawURL string, depth, assetDepth int) *Resource {
	return &Resource{
		ID:         id,
		URL:        rawURL,
		Depth:      depth,
		AssetDepth: assetDepth,
		status:     StatusPending,
		edits:      make(map[int]edit),
		parents:    make(map[int]struct{}),
	}
}

// LocalPath returns the slash-separated path relative to the output root.
func (r *Resource) LocalPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localPath
}

// ContentType returns the content classification.
func (r *Resource) ContentType() ContentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contentType
}

// MediaType returns the Content-Type header the resource was served with.
func (r *Resource) MediaType() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mediaType
}

// Status returns the lifecycle state.
func (r *Resource) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Err returns why the resource was filtered or failed, or nil.
func (r *Resource) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failure
}

// Fill records fetched content and marks the resource Fetched.
// Textual bodies become the resource text; everything else is kept as bytes.
func (r *Resource) Fill(localPath string, ct ContentType, content Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !canTransition(r.status, StatusFetched) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, StatusFetched)
	}

	r.localPath = localPath
	r.contentType = ct
	r.mediaType = content.MediaType
	r.finalURL = content.FinalURL
	if ct.IsText() {
		r.source = string(content.Body)
		r.data = nil
	} else {
		r.data = content.Body
	}
	r.edits = make(map[int]edit)
	r.status = StatusFetched
	return nil
}

// BaseURL returns the URL relative references in the content resolve
// against: the URL after redirects, or URL when there were none.
func (r *Resource) BaseURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.finalURL != "" {
		return r.finalURL
	}
	return r.URL
}

// SetText replaces the text of a textual resource and discards earlier edits.
func (r *Resource) SetText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contentType.IsText() {
		return fmt.Errorf("%w: %s is %s", ErrTypeMismatch, r.URL, r.contentType)
	}
	r.source = text
	r.edits = make(map[int]edit)
	return nil
}

// Text returns the current text with every rewritten reference applied.
func (r *Resource) Text() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.contentType.IsText() {
		return "", fmt.Errorf("%w: %s is %s", ErrTypeMismatch, r.URL, r.contentType)
	}
	return r.render(), nil
}

// Source returns the text as it was fetched, ignoring rewrites.
func (r *Resource) Source() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.contentType.IsText() {
		return "", fmt.Errorf("%w: %s is %s", ErrTypeMismatch, r.URL, r.contentType)
	}
	return r.source, nil
}

// Bytes returns the content to persist: the rendered text for textual
// resources, the raw body otherwise.
func (r *Resource) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.contentType.IsText() {
		return []byte(r.render())
	}
	return r.data
}

// Size returns the length in bytes of the fetched content.
func (r *Resource) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.contentType.IsText() {
		return len(r.source)
	}
	return len(r.data)
}

// render must be called with r.mu held.
func (r *Resource) render() string {
	if len(r.edits) == 0 {
		return r.source
	}

	starts := make([]int, 0, len(r.edits))
	for start := range r.edits {
		starts = append(starts, start)
	}
	sort.Ints(starts)

	var b strings.Builder
	b.Grow(len(r.source))
	pos := 0
	for _, start := range starts {
		e := r.edits[start]
		b.WriteString(r.source[pos:start])
		b.WriteString(e.text)
		pos = e.end
	}
	b.WriteString(r.source[pos:])
	return b.String()
}

// UpdateChild rewrites every occurrence of ref to point at child's local path
// and returns how many occurrences were newly rewritten.
//
// Only the spans recorded in ref are touched, and only when the text around
// each span still matches its recorded delimiters, so a reference to
// "style.css" can never alter "mystyle.css". Rewriting an already rewritten
// span is a no-op and is not counted; zero is a legal result.
//
// The written path is relative to the directory of this resource's own local
// path. A fragment on the original reference is kept.
func (r *Resource) UpdateChild(child *Resource, ref Reference) (int, error) {
	target := child.LocalPath()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contentType.IsText() {
		return 0, fmt.Errorf("%w: %s is %s", ErrTypeMismatch, r.URL, r.contentType)
	}

	written := relativePath(r.localPath, target) + fragmentOf(ref.Raw)
	count := 0
	for _, occ := range ref.Occurrences {
		if !r.spanMatches(occ) {
			continue
		}
		text := written
		if occ.Entity {
			text = html.EscapeString(written)
		}
		if prev, ok := r.edits[occ.Start]; ok && prev.end == occ.End && prev.text == text {
			continue
		}
		r.edits[occ.Start] = edit{end: occ.End, text: text}
		count++
	}
	return count, nil
}

// ReplaceSpan replaces the span of occ with text, under the same delimiter
// check as UpdateChild. It reports whether the rendered text changed.
func (r *Resource) ReplaceSpan(occ Occurrence, text string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contentType.IsText() {
		return false, fmt.Errorf("%w: %s is %s", ErrTypeMismatch, r.URL, r.contentType)
	}
	if !r.spanMatches(occ) {
		return false, nil
	}
	if prev, ok := r.edits[occ.Start]; ok && prev.end == occ.End && prev.text == text {
		return false, nil
	}
	r.edits[occ.Start] = edit{end: occ.End, text: text}
	return true, nil
}

// spanMatches checks that occ still points at a value framed by its
// delimiters in the source text. Must be called with r.mu held.
func (r *Resource) spanMatches(occ Occurrence) bool {
	start := occ.Start - len(occ.Prefix)
	end := occ.End + len(occ.Suffix)
	if start < 0 || occ.Start > occ.End || end > len(r.source) {
		return false
	}
	return r.source[start:occ.Start] == occ.Prefix && r.source[occ.End:end] == occ.Suffix
}

// relativePath expresses target relative to the directory holding from.
func relativePath(from, target string) string {
	if target == "" {
		return target
	}
	dir := path.Dir(from)
	if dir == "." || dir == "/" || from == "" {
		return target
	}
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// fragmentOf returns the "#..." suffix of a raw reference, or "".
func fragmentOf(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[i:]
	}
	return ""
}

// MarkFiltered moves a Pending resource to Filtered.
func (r *Resource) MarkFiltered(reason error) error {
	return r.transition(StatusFiltered, reason)
}

// MarkFailed moves a Pending resource to Failed.
func (r *Resource) MarkFailed(reason error) error {
	return r.transition(StatusFailed, reason)
}

// MarkRunning moves a Fetched resource to HandlerRunning.
func (r *Resource) MarkRunning() error {
	return r.transition(StatusHandlerRunning, nil)
}

// MarkDone moves a HandlerRunning resource to Done.
func (r *Resource) MarkDone() error {
	return r.transition(StatusDone, nil)
}

func (r *Resource) transition(to Status, reason error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !canTransition(r.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, to)
	}
	r.status = to
	if reason != nil {
		r.failure = reason
	}
	return nil
}

// Parents returns the ids of the resources referring to this one, sorted.
func (r *Resource) Parents() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.parents))
	for id := range r.parents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Children returns the ids of the resources this one refers to, in the order
// they were linked.
func (r *Resource) Children() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int(nil), r.children...)
}

// Link records that parent refers to child. Linking the same pair twice has
// no effect. A resource may be its own child.
func Link(parent, child *Resource) {
	parent.mu.Lock()
	linked := false
	for _, id := range parent.children {
		if id == child.ID {
			linked = true
			break
		}
	}
	if !linked {
		parent.children = append(parent.children, child.ID)
	}
	parent.mu.Unlock()

	child.mu.Lock()
	child.parents[parent.ID] = struct{}{}
	child.mu.Unlock()
}
