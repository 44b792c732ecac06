package handler

import (
	"context"
	"sync"

	"github.com/nao1215/sitemirror/internal/model"
)

// Future is the handle a caller holds for one requested reference.
//
// A request settles in two stages. It is resolved once the outcome of the
// fetch is known (a resource, or none), and loaded once the resource's own
// handler has finished. Every caller of the same URL shares one settlement,
// but only the caller that created the cache entry (the owner) waits for the
// loaded stage. Duplicate and cyclic requesters wait for the resolved stage
// only, so a page that links back to its parent never waits on itself, while
// the whole crawl still joins through the owners.
type Future struct {
	s     *settlement
	owner bool
}

type settlement struct {
	resolved    chan struct{}
	loaded      chan struct{}
	resolveOnce sync.Once
	loadOnce    sync.Once
	resource    *model.Resource
	err         error
}

// NewFuture creates an unsettled future owned by the caller.
func NewFuture() *Future {
	return &Future{
		s: &settlement{
			resolved: make(chan struct{}),
			loaded:   make(chan struct{}),
		},
		owner: true,
	}
}

// Settled returns a future that is already resolved and loaded.
func Settled(res *model.Resource, err error) *Future {
	f := NewFuture()
	f.Resolve(res, err)
	f.Finish()
	return f
}

// Follow returns a non-owning handle on the same settlement.
func (f *Future) Follow() *Future {
	return &Future{s: f.s}
}

// Owner reports whether this handle waits for the loaded stage.
func (f *Future) Owner() bool {
	return f.owner
}

// Resolve records the outcome. Only the first call has an effect.
func (f *Future) Resolve(res *model.Resource, err error) {
	f.s.resolveOnce.Do(func() {
		f.s.resource = res
		f.s.err = err
		close(f.s.resolved)
	})
}

// Finish marks the loaded stage. A future finished without being resolved
// resolves to ErrAbandoned.
func (f *Future) Finish() {
	f.Resolve(nil, ErrAbandoned)
	f.s.loadOnce.Do(func() {
		close(f.s.loaded)
	})
}

// Resolved returns a channel closed once the outcome is known.
func (f *Future) Resolved() <-chan struct{} {
	return f.s.resolved
}

// Loaded returns a channel closed once the owner finished loading.
func (f *Future) Loaded() <-chan struct{} {
	return f.s.loaded
}

// Wait blocks until the future settles for this handle and returns the
// resource, which is nil when the reference was filtered or failed.
func (f *Future) Wait(ctx context.Context) (*model.Resource, error) {
	select {
	case <-f.s.resolved:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if f.owner {
		select {
		case <-f.s.loaded:
		case <-ctx.Done():
			return f.s.resource, ctx.Err()
		}
	}

	return f.s.resource, f.s.err
}
