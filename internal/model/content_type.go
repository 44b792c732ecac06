package model

import (
	"mime"
	"path"
	"strings"
)

// ContentType is the closed set of content kinds the mirror distinguishes.
// Each variant maps to at most one reference handler.
//
// Design decision: We use a small enum rather than raw MIME strings because:
//  1. Handler dispatch becomes a fixed-size table lookup
//  2. Servers send many spellings of the same type (text/css; charset=utf-8)
//  3. Only the textual kinds need different treatment; everything else is bytes
type ContentType int

const (
	// ContentTypeBinary is any opaque content (images, fonts, scripts, media).
	ContentTypeBinary ContentType = iota

	// ContentTypeHTML is markup whose tag attributes carry references.
	ContentTypeHTML

	// ContentTypeCSS is stylesheet text with url() and @import references.
	ContentTypeCSS

	// NumContentTypes is the number of ContentType variants.
	// It sizes dispatch tables indexed by ContentType.
	NumContentTypes = iota
)

// unknownStr is the string representation for unknown values.
const unknownStr = "unknown"

// String returns a short name for the content type.
func (c ContentType) String() string {
	switch c {
	case ContentTypeBinary:
		return "binary"
	case ContentTypeHTML:
		return "html"
	case ContentTypeCSS:
		return "css"
	default:
		return unknownStr
	}
}

// ParseContentType converts a string produced by String back into a
// ContentType. Unknown strings map to ContentTypeBinary.
func ParseContentType(s string) ContentType {
	switch s {
	case "html":
		return ContentTypeHTML
	case "css":
		return ContentTypeCSS
	default:
		return ContentTypeBinary
	}
}

// IsText reports whether resources of this type carry editable text.
func (c ContentType) IsText() bool {
	return c == ContentTypeHTML || c == ContentTypeCSS
}

// DetectContentType classifies a response from its Content-Type header,
// falling back to the URL's file extension when the header is missing or
// generic (text/plain, application/octet-stream).
func DetectContentType(mediaType, rawURL string) ContentType {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mediaType))
	}

	switch mt {
	case "text/html", "application/xhtml+xml":
		return ContentTypeHTML
	case "text/css":
		return ContentTypeCSS
	case "", "text/plain", "application/octet-stream", "binary/octet-stream":
		return contentTypeFromExtension(rawURL)
	default:
		return ContentTypeBinary
	}
}

// contentTypeFromExtension guesses the content type from a URL path.
// A path without extension is assumed to be a page.
func contentTypeFromExtension(rawURL string) ContentType {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
		if j := strings.Index(p, "/"); j >= 0 {
			p = p[j:]
		} else {
			p = "/"
		}
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm", ".xhtml", ".php", ".asp", ".aspx", ".jsp":
		return ContentTypeHTML
	case ".css":
		return ContentTypeCSS
	case "":
		return ContentTypeHTML
	default:
		return ContentTypeBinary
	}
}
