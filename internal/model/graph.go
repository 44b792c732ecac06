package model

import (
	"slices"
	"sync"
)

// Graph is the arena holding every resource of one mirror session.
// Resources are addressed by their integer id, which is their index in the
// arena, and can also be looked up by normalized URL.
//
// Graph does not decide whether a URL is new; the session's dedup cache does
// that and calls Add exactly once per URL.
type Graph struct {
	mu        sync.RWMutex
	resources []*Resource
	byURL     map[string]int
	roots     []int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		resources: make([]*Resource, 0),
		byURL:     make(map[string]int),
		roots:     make([]int, 0),
	}
}

// Add inserts a Pending resource for rawURL and returns it.
// If the URL is already present the existing resource is returned unchanged,
// except that it is recorded as a root when root is set.
func (g *Graph) Add(rawURL string, depth, assetDepth int, root bool) *Resource {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byURL[rawURL]; ok {
		if root && !slices.Contains(g.roots, id) {
			g.roots = append(g.roots, id)
		}
		return g.resources[id]
	}

	id := len(g.resources)
	res := newPendingResource(id, rawURL, depth, assetDepth)
	g.resources = append(g.resources, res)
	g.byURL[rawURL] = id
	if root {
		g.roots = append(g.roots, id)
	}
	return res
}

// Get returns the resource with the given id.
func (g *Graph) Get(id int) (*Resource, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if id < 0 || id >= len(g.resources) {
		return nil, ErrResourceNotFound
	}
	return g.resources[id], nil
}

// Lookup returns the resource stored for a normalized URL.
func (g *Graph) Lookup(rawURL string) (*Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byURL[rawURL]
	if !ok {
		return nil, false
	}
	return g.resources[id], true
}

// Len returns the number of resources.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.resources)
}

// All returns every resource ordered by id (which is discovery order).
func (g *Graph) All() []*Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Resource(nil), g.resources...)
}

// Roots returns the seed resources in the order they were requested.
func (g *Graph) Roots() []*Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()

	roots := make([]*Resource, 0, len(g.roots))
	for _, id := range g.roots {
		roots = append(roots, g.resources[id])
	}
	return roots
}

// Children returns the child resources of the resource with the given id.
func (g *Graph) Children(id int) ([]*Resource, error) {
	res, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return g.collect(res.Children())
}

// Parents returns the parent resources of the resource with the given id.
func (g *Graph) Parents(id int) ([]*Resource, error) {
	res, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return g.collect(res.Parents())
}

func (g *Graph) collect(ids []int) ([]*Resource, error) {
	out := make([]*Resource, 0, len(ids))
	for _, id := range ids {
		r, err := g.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CountByStatus returns how many resources are in each status.
func (g *Graph) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, r := range g.All() {
		counts[r.Status()]++
	}
	return counts
}
