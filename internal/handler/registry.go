package handler

import "github.com/nao1215/sitemirror/internal/model"

// Registry maps every content type to its Handler.
//
// Design decision: The table is a fixed-size array indexed by
// model.ContentType rather than a map keyed by MIME string because:
//  1. The set of content types is closed, so every slot is known up front
//  2. A lookup cannot miss because of MIME spelling variations
//  3. Adding a content type forces a decision here for its handler
type Registry struct {
	handlers [model.NumContentTypes]Handler
}

// NewRegistry returns the built-in table: stylesheets and markup get a
// ReferenceHandler, binary content gets none. Handlers report dropped
// references to observer, which may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{
		handlers: [model.NumContentTypes]Handler{
			model.ContentTypeBinary: nil,
			model.ContentTypeHTML:   NewReferenceHandler(HTMLExtractor{}, observer),
			model.ContentTypeCSS:    NewReferenceHandler(CSSExtractor{}, observer),
		},
	}
}

// Lookup returns the handler for ct. The second result is false for content
// types that are leaves of the graph.
func (r *Registry) Lookup(ct model.ContentType) (Handler, bool) {
	if ct < 0 || int(ct) >= len(r.handlers) {
		return nil, false
	}
	h := r.handlers[ct]
	return h, h != nil
}

// With returns a copy of the registry with h installed for ct.
// A nil h turns ct into a leaf type.
func (r *Registry) With(ct model.ContentType, h Handler) *Registry {
	clone := *r
	if ct >= 0 && int(ct) < len(clone.handlers) {
		clone.handlers[ct] = h
	}
	return &clone
}
