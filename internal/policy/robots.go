package policy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// DefaultRobotsTTL is how long fetched robots.txt rules are reused.
const DefaultRobotsTTL = 30 * time.Minute

// Robots evaluates robots.txt rules with a per-host cache.
//
// Concurrent lookups for the same host share one fetch. A robots.txt that
// cannot be fetched or parsed allows everything, and that verdict is cached
// like any other so a broken host is not asked again on every URL.
type Robots struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	cache  map[string]robotsEntry
	flight singleflight.Group
}

type robotsEntry struct {
	fetched time.Time
	// rules is nil when everything is allowed.
	rules *robotstxt.RobotsData
}

// RobotsOption configures Robots.
type RobotsOption func(*Robots)

// WithRobotsTTL sets how long rules are cached.
func WithRobotsTTL(ttl time.Duration) RobotsOption {
	return func(r *Robots) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRobotsLogger sets the logger.
func WithRobotsLogger(logger *slog.Logger) RobotsOption {
	return func(r *Robots) {
		r.logger = logger
	}
}

// NewRobots creates a robots.txt evaluator. The client should be the one the
// mirror fetches with so that proxies and timeouts match.
func NewRobots(client *http.Client, userAgent string, opts ...RobotsOption) *Robots {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := &Robots{
		client:    client,
		userAgent: userAgent,
		ttl:       DefaultRobotsTTL,
		logger:    slog.Default(),
		cache:     make(map[string]robotsEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allowed reports whether target may be fetched.
func (r *Robots) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}

	rules := r.rules(ctx, target)
	if rules == nil {
		return true
	}

	p := target.EscapedPath()
	if p == "" {
		p = "/"
	}
	if target.RawQuery != "" {
		p += "?" + target.RawQuery
	}
	return rules.TestAgent(p, r.userAgent)
}

// rules returns the cached rules of target's host, fetching them if needed.
func (r *Robots) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetched) < r.ttl {
		return entry.rules
	}

	v, _, _ := r.flight.Do(key, func() (any, error) {
		r.mu.RLock()
		entry, ok := r.cache[key]
		r.mu.RUnlock()
		if ok && time.Since(entry.fetched) < r.ttl {
			return entry.rules, nil
		}

		rules, err := r.fetch(ctx, key+"/robots.txt")
		if err != nil {
			r.logger.Debug("robots.txt unavailable, allowing all", "host", target.Host, "error", err)
		}

		r.mu.Lock()
		r.cache[key] = robotsEntry{fetched: time.Now(), rules: rules}
		r.mu.Unlock()
		return rules, nil
	})

	rules, _ := v.(*robotstxt.RobotsData)
	return rules
}

func (r *Robots) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// A server error says nothing about the rules; robotstxt would read it
	// as "disallow all", which would stop the whole mirror.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %d", ErrRobotsStatus, resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Purge evicts the cached rules of a scheme://host origin.
func (r *Robots) Purge(origin string) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return
	}
	r.mu.Lock()
	delete(r.cache, origin)
	r.mu.Unlock()
}
