package handler

import (
	"context"
	"fmt"

	"github.com/nao1215/sitemirror/internal/model"
	"golang.org/x/sync/errgroup"
)

// Target is one reference submitted to the mirror for resolution.
type Target struct {
	// URL is the absolute URL the reference resolved to.
	URL string

	// Kind is how the parent uses the reference.
	Kind model.Kind

	// Parent is the referring resource, nil for seeds.
	Parent *model.Resource
}

// RequestFunc requests a target and returns a future for its resolution.
// The mirror's RequestResource is the production implementation.
type RequestFunc func(ctx context.Context, target Target) *Future

// Event describes a reference that settled without a resource.
type Event struct {
	// Parent is the resource containing the reference.
	Parent *model.Resource

	// Reference is the reference that was not rewritten.
	Reference model.Reference

	// URL is the resolved URL, empty if resolution itself failed.
	URL string

	// Err is the reason, nil when the mirror resolved to nothing without error.
	Err error
}

// Observer receives diagnostic events from handlers.
type Observer interface {
	ReferenceDropped(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// ReferenceDropped calls f(ev).
func (f ObserverFunc) ReferenceDropped(ev Event) {
	f(ev)
}

type nopObserver struct{}

func (nopObserver) ReferenceDropped(Event) {}

// Extractor locates references in the text of one content type.
type Extractor interface {
	// Extract returns the distinct references in order of first occurrence.
	Extract(text string) []model.Reference
}

// Neutralizer is implemented by extractors whose format has directives that
// would misdirect the rewritten references of the local copy, such as the
// href of an HTML <base>. Each returned span is replaced by the empty string.
type Neutralizer interface {
	Neutralize(text string) []model.Occurrence
}

// Handler processes the references of a fetched resource.
type Handler interface {
	// Load extracts the references of res, requests all of them, rewrites res
	// as each one settles and returns once every reference has settled.
	// Failures of individual references are never returned.
	Load(ctx context.Context, res *model.Resource, request RequestFunc) error
}

// ReferenceHandler is the Handler for textual content: it pairs an
// Extractor with the fan-out, join and rewrite logic.
type ReferenceHandler struct {
	extractor Extractor
	observer  Observer
}

// NewReferenceHandler creates a handler around extractor.
// A nil observer discards events.
func NewReferenceHandler(extractor Extractor, observer Observer) *ReferenceHandler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ReferenceHandler{
		extractor: extractor,
		observer:  observer,
	}
}

// Load implements Handler.
func (h *ReferenceHandler) Load(ctx context.Context, res *model.Resource, request RequestFunc) error {
	text, err := res.Source()
	if err != nil {
		return err
	}

	if n, ok := h.extractor.(Neutralizer); ok {
		for _, occ := range n.Neutralize(text) {
			if _, err := res.ReplaceSpan(occ, ""); err != nil {
				return err
			}
		}
	}

	refs := h.extractor.Extract(text)
	if len(refs) == 0 {
		return nil
	}

	// Requests are issued in source order. Each request returns immediately;
	// the fetching happens concurrently behind the futures.
	futures := make([]*Future, len(refs))
	urls := make([]string, len(refs))
	for i, ref := range refs {
		abs, err := resolveReference(baseFor(res.BaseURL(), ref.Base), ref.Raw)
		if err != nil {
			h.observer.ReferenceDropped(Event{Parent: res, Reference: ref, Err: err})
			continue
		}
		urls[i] = abs
		futures[i] = h.request(ctx, request, Target{URL: abs, Kind: ref.Kind, Parent: res})
	}

	children := make([]*model.Resource, len(refs))
	var g errgroup.Group
	for i := range refs {
		if futures[i] == nil {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					h.observer.ReferenceDropped(Event{
						Parent: res, Reference: refs[i], URL: urls[i],
						Err: fmt.Errorf("%w: %v", ErrPanic, r),
					})
				}
				err = nil
			}()

			child, werr := futures[i].Wait(ctx)
			if werr != nil || child == nil {
				h.observer.ReferenceDropped(Event{Parent: res, Reference: refs[i], URL: urls[i], Err: werr})
				return nil
			}
			if _, uerr := res.UpdateChild(child, refs[i]); uerr != nil {
				h.observer.ReferenceDropped(Event{Parent: res, Reference: refs[i], URL: urls[i], Err: uerr})
				return nil
			}
			children[i] = child
			return nil
		})
	}
	_ = g.Wait()

	for _, child := range children {
		if child != nil {
			model.Link(res, child)
		}
	}
	return nil
}

// request calls request and turns a panic into a settled failure.
func (h *ReferenceHandler) request(ctx context.Context, request RequestFunc, target Target) (f *Future) {
	defer func() {
		if r := recover(); r != nil {
			f = Settled(nil, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	f = request(ctx, target)
	if f == nil {
		f = Settled(nil, nil)
	}
	return f
}
