package crawler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/sitemirror/internal/handler"
	"github.com/nao1215/sitemirror/internal/model"
)

// Session is the dedup cache and resource graph of one mirror run.
//
// The cache maps a normalized URL to the future of its resolution. Entries are
// never removed or replaced: a URL that was filtered or failed stays that way
// for the rest of the session.
type Session struct {
	id      string
	started time.Time
	graph   *model.Graph

	// mu guards entries. The check-then-insert in claim is the only critical
	// section of the crawl.
	mu      sync.Mutex
	entries map[string]*handler.Future
}

// NewSession creates an empty session with a random id.
func NewSession() *Session {
	return &Session{
		id:      uuid.NewString(),
		started: time.Now(),
		graph:   model.NewGraph(),
		entries: make(map[string]*handler.Future),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.started
}

// Graph returns the session's resource graph.
func (s *Session) Graph() *model.Graph {
	return s.graph
}

// Len returns the number of distinct URLs claimed so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// claim returns the cache entry for key. If key is new, a Pending resource
// and an owned future are inserted in one step and owner is true; the caller
// must then resolve and finish the future. Otherwise the existing resource
// and a following handle on its future are returned.
func (s *Session) claim(key string, depth, assetDepth int, root bool) (res *model.Resource, f *handler.Future, owner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		res = s.graph.Add(key, depth, assetDepth, root)
		return res, existing.Follow(), false
	}

	res = s.graph.Add(key, depth, assetDepth, root)
	f = handler.NewFuture()
	s.entries[key] = f
	return res, f, true
}
