package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/sitemirror/internal/handler"
	"github.com/nao1215/sitemirror/internal/model"
)

// Transport fetches the content of one URL.
// Implementations own retries, timeouts and concurrency limits.
type Transport interface {
	Fetch(ctx context.Context, rawURL string) (model.Content, error)
}

// Namer assigns the local path of a resource. Paths must be unique across
// the whole session.
type Namer interface {
	Assign(rawURL string, ct model.ContentType) (string, error)
}

// Admission decides whether a discovered URL is followed at all.
type Admission interface {
	ShouldFollow(ctx context.Context, c model.Candidate) bool
}

// AdmitAll is an Admission that accepts every URL.
type AdmitAll struct{}

// ShouldFollow always returns true.
func (AdmitAll) ShouldFollow(context.Context, model.Candidate) bool { return true }

// Mirror is the crawl orchestrator.
//
// Design decision: RequestResource returns a future instead of blocking
// because:
//  1. Handlers must fan out all references of a document concurrently
//  2. The cache claim happens synchronously, so requests are made (and
//     Pending entries inserted) in source order even though fetching is not
//  3. A cyclic reference can wait on the resolved stage of an entry whose
//     owner is still loading, without deadlocking
type Mirror struct {
	transport Transport
	namer     Namer
	admission Admission
	registry  *handler.Registry
	observer  handler.Observer
	logger    *slog.Logger
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithAdmission sets the admission policy. The default admits everything.
func WithAdmission(a Admission) Option {
	return func(m *Mirror) {
		m.admission = a
	}
}

// WithRegistry sets the handler registry.
// The default is handler.NewRegistry with the mirror's observer.
func WithRegistry(r *handler.Registry) Option {
	return func(m *Mirror) {
		m.registry = r
	}
}

// WithObserver sets the receiver of dropped-reference events.
// The default logs them.
func WithObserver(o handler.Observer) Option {
	return func(m *Mirror) {
		m.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// NewMirror creates a Mirror using transport to fetch and namer to assign
// local paths.
func NewMirror(transport Transport, namer Namer, opts ...Option) *Mirror {
	m := &Mirror{
		transport: transport,
		namer:     namer,
		admission: AdmitAll{},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.observer == nil {
		m.observer = NewLogObserver(m.logger)
	}
	if m.registry == nil {
		m.registry = handler.NewRegistry(m.observer)
	}

	return m
}

// Run requests every seed and waits until the whole graph reachable from
// them has settled. It returns the seed resources in order; a seed that was
// filtered or failed is nil. Per-URL failures are not errors; the returned
// error is only set when ctx ends first.
func (m *Mirror) Run(ctx context.Context, s *Session, seeds []string) ([]*model.Resource, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	futures := make([]*handler.Future, len(seeds))
	for i, seed := range seeds {
		futures[i] = m.RequestResource(ctx, s, handler.Target{URL: seed, Kind: model.KindNavigation})
	}

	roots := make([]*model.Resource, len(seeds))
	for i, f := range futures {
		res, err := f.Wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return roots, ctxErr
		}
		if err != nil {
			m.logger.Warn("seed not mirrored", "url", seeds[i], "error", err)
			continue
		}
		roots[i] = res
	}

	return roots, nil
}

// RequestResource resolves target to a resource of session s.
//
// The URL is normalized and looked up in the session cache synchronously.
// If another request already claimed it, a handle on that request is returned
// and no transport call is made. Otherwise a Pending resource is inserted and
// the URL is admitted, fetched, named and loaded on a new goroutine.
//
// The future resolves to nil when the URL was filtered or failed.
func (m *Mirror) RequestResource(ctx context.Context, s *Session, target handler.Target) *handler.Future {
	key, err := NormalizeURL(target.URL)
	if err != nil {
		return handler.Settled(nil, err)
	}

	depth, assetDepth := childDepth(target)
	res, f, owner := s.claim(key, depth, assetDepth, target.Parent == nil)
	if !owner {
		return f
	}

	go m.resolve(ctx, s, res, f, target)
	return f
}

// childDepth computes the depths of a resource discovered through target.
// Navigation resets the asset chain and goes one level deeper; assets stay
// on their parent's level.
func childDepth(target handler.Target) (depth, assetDepth int) {
	if target.Parent == nil {
		return 0, 0
	}
	if target.Kind == model.KindNavigation {
		return target.Parent.Depth + 1, 0
	}
	return target.Parent.Depth, target.Parent.AssetDepth + 1
}

// resolve runs the admission -> fetch -> naming -> load sequence for a
// freshly claimed resource and settles its future.
func (m *Mirror) resolve(ctx context.Context, s *Session, res *model.Resource, f *handler.Future, target handler.Target) {
	defer f.Finish()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrPanic, r)
			m.logger.Error("recovered panic", "url", res.URL, "error", err)
			// Past Resolve the resource keeps its content; only its load ends.
			if res.Status() == model.StatusHandlerRunning {
				_ = res.MarkDone()
			}
			m.fail(res, f, err)
		}
	}()

	candidate := model.Candidate{
		URL:        res.URL,
		Depth:      res.Depth,
		AssetDepth: res.AssetDepth,
		Kind:       target.Kind,
	}
	if target.Parent != nil {
		candidate.ParentURL = target.Parent.URL
	}

	if !m.admission.ShouldFollow(ctx, candidate) {
		_ = res.MarkFiltered(ErrFilteredByPolicy)
		f.Resolve(nil, ErrFilteredByPolicy)
		m.logger.Debug("filtered", "url", res.URL, "parent", candidate.ParentURL, "depth", res.Depth)
		return
	}

	content, err := m.transport.Fetch(ctx, res.URL)
	if err != nil {
		m.fail(res, f, fmt.Errorf("%w: %w", ErrTransportFailure, err))
		return
	}

	ct := model.DetectContentType(content.MediaType, res.URL)
	localPath, err := m.namer.Assign(res.URL, ct)
	if err != nil {
		m.fail(res, f, fmt.Errorf("%w: %w", ErrNaming, err))
		return
	}

	if err := res.Fill(localPath, ct, content); err != nil {
		m.fail(res, f, err)
		return
	}
	f.Resolve(res, nil)
	m.logger.Debug("fetched", "url", res.URL, "local_path", localPath, "content_type", ct.String(), "bytes", len(content.Body))

	if _, err := m.LoadResource(ctx, s, res); err != nil {
		m.logger.Warn("loading resource", "url", res.URL, "error", err)
	}
}

// fail records err on a resource that has not been resolved yet. A future
// that was already resolved keeps its outcome.
func (m *Mirror) fail(res *model.Resource, f *handler.Future, err error) {
	if res.Status() == model.StatusPending {
		_ = res.MarkFailed(err)
	}
	f.Resolve(nil, err)
	m.logger.Debug("failed", "url", res.URL, "error", err)
}

// LoadResource runs the handler registered for the resource's content type.
// Resources without a handler are leaves and are returned unchanged. With a
// handler, every reference is requested and the resource's text is rewritten
// in place; LoadResource returns once all references have settled.
func (m *Mirror) LoadResource(ctx context.Context, s *Session, res *model.Resource) (*model.Resource, error) {
	h, ok := m.registry.Lookup(res.ContentType())
	if !ok {
		return res, nil
	}

	if err := res.MarkRunning(); err != nil {
		return res, err
	}

	request := func(ctx context.Context, target handler.Target) *handler.Future {
		return m.RequestResource(ctx, s, target)
	}
	if err := h.Load(ctx, res, request); err != nil {
		m.logger.Warn("handler failed", "url", res.URL, "error", err)
	}

	return res, res.MarkDone()
}
