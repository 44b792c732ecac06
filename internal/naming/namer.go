package naming

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/nao1215/sitemirror/internal/model"
)

// Strategy selects how local paths are derived from URLs.
type Strategy string

const (
	// ByType groups files into directories by content type.
	ByType Strategy = "by-type"

	// ByPath mirrors the URL path.
	ByPath Strategy = "by-path"
)

// indexName is the file name of directory URLs and of the first page.
const indexName = "index.html"

// ParseStrategy converts a strategy name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case ByType, "":
		return ByType, nil
	case ByPath:
		return ByPath, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// typeDirs maps file extensions to by-type directories.
var typeDirs = map[string]string{
	".png": "images", ".jpg": "images", ".jpeg": "images", ".gif": "images",
	".svg": "images", ".webp": "images", ".ico": "images", ".avif": "images",
	".bmp": "images",
	".js": "js", ".mjs": "js",
	".woff": "fonts", ".woff2": "fonts", ".ttf": "fonts", ".otf": "fonts",
	".eot": "fonts",
	".mp4": "media", ".webm": "media", ".mp3": "media", ".ogg": "media",
	".wav": "media", ".vtt": "media",
}

// Namer assigns session-unique local paths. It implements crawler.Namer and
// is safe for concurrent use.
type Namer struct {
	strategy Strategy

	mu          sync.Mutex
	used        map[string]struct{}
	dirs        map[string]struct{}
	root        string
	primaryHost string
	hasIndex    bool
}

// Option configures a Namer.
type Option func(*Namer)

// WithRoot names the URL of the mirror's entry page, normally the first
// seed. With by-type naming that page, and no other, becomes index.html;
// its host is the primary host for by-path naming. Without a root both go
// to the first URL assigned.
func WithRoot(rawURL string) Option {
	return func(n *Namer) {
		n.root = rawURL
		if u, err := url.Parse(rawURL); err == nil {
			n.primaryHost = strings.ToLower(u.Host)
		}
	}
}

// New creates a Namer using strategy.
func New(strategy Strategy, opts ...Option) *Namer {
	if strategy == "" {
		strategy = ByType
	}
	n := &Namer{
		strategy: strategy,
		used:     make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.root != "" && n.strategy == ByType {
		n.used[indexName] = struct{}{}
	}
	return n
}

// Strategy returns the namer's strategy.
func (n *Namer) Strategy() Strategy {
	return n.strategy
}

// Assign returns the local path of rawURL, relative to the mirror root and
// separated by forward slashes.
func (n *Namer) Assign(rawURL string, ct model.ContentType) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.primaryHost == "" {
		n.primaryHost = strings.ToLower(u.Host)
	}

	if n.strategy != ByPath && ct == model.ContentTypeHTML && n.takesIndex(rawURL) {
		n.used[indexName] = struct{}{}
		return indexName, nil
	}

	var candidate string
	switch n.strategy {
	case ByPath:
		candidate = n.byPath(u, ct)
	default:
		candidate = n.byType(u, ct)
	}
	return n.reserve(candidate), nil
}

// byType returns dir/name.ext with dir chosen from the content type.
func (n *Namer) byType(u *url.URL, ct model.ContentType) string {
	segment := path.Base(u.Path)
	if segment == "/" || segment == "." {
		segment = ""
	}
	stem, ext := splitExt(segment)
	ext = extensionFor(ct, ext)

	if stem == "" {
		stem = "index"
	}
	name := withQuery(sanitizeSegment(stem), u.RawQuery) + ext

	switch ct {
	case model.ContentTypeHTML:
		return name
	case model.ContentTypeCSS:
		return path.Join("css", name)
	default:
		dir, ok := typeDirs[ext]
		if !ok {
			dir = "files"
		}
		return path.Join(dir, name)
	}
}

// takesIndex reports whether the page at rawURL is named index.html. It is
// true once: for the root, or for the first page when there is no root.
func (n *Namer) takesIndex(rawURL string) bool {
	if n.hasIndex || (n.root != "" && rawURL != n.root) {
		return false
	}
	n.hasIndex = true
	return true
}

// byPath returns the URL path with every segment sanitized.
func (n *Namer) byPath(u *url.URL, ct model.ContentType) string {
	var segments []string
	if host := strings.ToLower(u.Host); host != n.primaryHost {
		segments = append(segments, sanitizeSegment(host))
	}

	trimmed := strings.Trim(u.Path, "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}

	last := ""
	if len(parts) > 0 && !strings.HasSuffix(u.Path, "/") {
		last = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	for _, p := range parts {
		segments = append(segments, sanitizeSegment(p))
	}

	stem, ext := splitExt(last)
	if stem == "" {
		stem = "index"
	}
	name := withQuery(sanitizeSegment(stem), u.RawQuery) + extensionFor(ct, ext)

	return path.Join(append(segments, name)...)
}

// reserve marks candidate as used and returns it, changed where it is taken.
// A path is taken when it was assigned before or is a directory of an
// earlier path, so "api/data" and "api/data/x.png" cannot both be files: a
// file that would shadow a directory gets a numeric suffix before its
// extension, and a directory that would shadow a file is renamed the same
// way ("api/data-1/x.png").
func (n *Namer) reserve(candidate string) string {
	parts := strings.Split(candidate, "/")
	for i := 0; i < len(parts)-1; i++ {
		segment := parts[i]
		for k := 1; n.isFile(path.Join(parts[:i+1]...)); k++ {
			parts[i] = segment + "-" + strconv.Itoa(k)
		}
	}
	candidate = strings.Join(parts, "/")

	if n.isFree(candidate) {
		n.record(candidate)
		return candidate
	}

	stem, ext := splitExt(candidate)
	for i := 1; ; i++ {
		next := stem + "-" + strconv.Itoa(i) + ext
		if n.isFree(next) {
			n.record(next)
			return next
		}
	}
}

func (n *Namer) isFile(p string) bool {
	_, ok := n.used[strings.ToLower(p)]
	return ok
}

func (n *Namer) isFree(p string) bool {
	_, dir := n.dirs[strings.ToLower(p)]
	return !dir && !n.isFile(p)
}

// record marks p as a file and its parents as directories.
func (n *Namer) record(p string) {
	n.used[strings.ToLower(p)] = struct{}{}
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		n.dirs[strings.ToLower(dir)] = struct{}{}
	}
}

// splitExt splits a name into its stem and lowercase extension.
// Names with only a leading dot (".htaccess") have no extension.
func splitExt(name string) (stem, ext string) {
	ext = path.Ext(name)
	if ext == name || strings.HasSuffix(ext, "/") {
		return name, ""
	}
	stem = strings.TrimSuffix(name, ext)
	ext = strings.ToLower(sanitizeExt(ext))
	return stem, ext
}

// sanitizeExt keeps extensions short and alphanumeric.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return ""
		}
	}
	return "." + ext
}

// extensionFor makes sure text resources open with the right program.
// Binary resources keep whatever extension they came with.
func extensionFor(ct model.ContentType, ext string) string {
	switch ct {
	case model.ContentTypeHTML:
		if ext != ".html" && ext != ".htm" {
			return ".html"
		}
	case model.ContentTypeCSS:
		return ".css"
	case model.ContentTypeBinary:
	}
	return ext
}

func withQuery(stem, rawQuery string) string {
	if rawQuery == "" {
		return stem
	}
	return stem + "-" + queryHash(rawQuery)
}
