package policy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/nao1215/sitemirror/internal/model"
	"golang.org/x/net/publicsuffix"
)

// Unlimited disables a depth or page limit.
const Unlimited = -1

// Policy is the admission policy of one mirror session.
// It implements crawler.Admission.
type Policy struct {
	hosts   map[string]struct{}
	domains map[string]struct{}

	allowSubdomains bool
	externalAssets  bool

	maxDepth      int
	maxAssetDepth int
	maxPages      int

	ignore []string
	follow []string

	robots *Robots
	logger *slog.Logger

	pages atomic.Int64
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxDepth limits how many navigation hops away from a seed a page may be.
// 0 mirrors the seeds only; Unlimited removes the limit.
func WithMaxDepth(depth int) Option {
	return func(p *Policy) {
		p.maxDepth = depth
	}
}

// WithMaxAssetDepth limits chains of assets (a stylesheet importing a
// stylesheet importing a font). 0 or Unlimited removes the limit.
func WithMaxAssetDepth(depth int) Option {
	return func(p *Policy) {
		p.maxAssetDepth = depth
	}
}

// WithMaxPages limits the number of navigation URLs admitted, seeds included.
// 0 or Unlimited removes the limit.
func WithMaxPages(n int) Option {
	return func(p *Policy) {
		p.maxPages = n
	}
}

// WithSubdomains treats every host under a seed's registrable domain as the
// same site, so www.example.com and static.example.com are both mirrored.
func WithSubdomains(allow bool) Option {
	return func(p *Policy) {
		p.allowSubdomains = allow
	}
}

// WithExternalAssets admits assets (images, stylesheets, scripts) hosted on
// other sites. Navigation never leaves the site.
func WithExternalAssets(allow bool) Option {
	return func(p *Policy) {
		p.externalAssets = allow
	}
}

// WithIgnorePatterns sets glob patterns of URL paths that are never followed.
func WithIgnorePatterns(patterns []string) Option {
	return func(p *Policy) {
		p.ignore = patterns
	}
}

// WithFollowPatterns sets glob patterns that navigation URLs must match.
func WithFollowPatterns(patterns []string) Option {
	return func(p *Policy) {
		p.follow = patterns
	}
}

// WithRobots enables robots.txt checks.
func WithRobots(r *Robots) Option {
	return func(p *Policy) {
		p.robots = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// New creates a Policy for a session started from seeds.
// The seeds define the site: their hosts, or their registrable domains when
// subdomains are allowed.
func New(seeds []string, opts ...Option) (*Policy, error) {
	p := &Policy{
		hosts:    make(map[string]struct{}),
		domains:  make(map[string]struct{}),
		maxDepth: Unlimited,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		p.hosts[host] = struct{}{}
		p.domains[registrableDomain(host)] = struct{}{}
	}
	if len(p.hosts) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoSeedHosts, seeds)
	}

	return p, nil
}

// ShouldFollow implements crawler.Admission.
func (p *Policy) ShouldFollow(ctx context.Context, c model.Candidate) bool {
	u, err := url.Parse(c.URL)
	if err != nil {
		return false
	}

	if !c.IsSeed() {
		if reason := p.reject(u, c); reason != "" {
			p.logger.Debug("not admitted", "url", c.URL, "parent", c.ParentURL, "reason", reason)
			return false
		}
	}

	if p.robots != nil && !p.robots.Allowed(ctx, u) {
		p.logger.Debug("not admitted", "url", c.URL, "reason", "robots")
		return false
	}

	if c.Kind == model.KindNavigation && p.maxPages > 0 {
		if p.pages.Add(1) > int64(p.maxPages) {
			p.logger.Debug("not admitted", "url", c.URL, "reason", "max pages")
			return false
		}
	}

	return true
}

// Pages returns the number of navigation URLs admitted so far.
func (p *Policy) Pages() int {
	n := int(p.pages.Load())
	if p.maxPages > 0 && n > p.maxPages {
		return p.maxPages
	}
	return n
}

// reject returns why a non-seed candidate is refused, or "" to admit it.
func (p *Policy) reject(u *url.URL, c model.Candidate) string {
	switch c.Kind {
	case model.KindNavigation:
		if p.maxDepth >= 0 && c.Depth > p.maxDepth {
			return "depth"
		}
	case model.KindAsset:
		if p.maxAssetDepth > 0 && c.AssetDepth > p.maxAssetDepth {
			return "asset depth"
		}
	}

	if !p.SameSite(u.Hostname()) {
		if c.Kind != model.KindAsset || !p.externalAssets {
			return "external"
		}
	}

	if !matchPath(p.ignore, nil, u.Path) {
		return "ignored"
	}
	if c.Kind == model.KindNavigation && !matchPath(nil, p.follow, u.Path) {
		return "not followed"
	}

	return ""
}

// SameSite reports whether host belongs to the mirrored site.
func (p *Policy) SameSite(host string) bool {
	host = strings.ToLower(host)
	if _, ok := p.hosts[host]; ok {
		return true
	}
	if !p.allowSubdomains {
		return false
	}
	_, ok := p.domains[registrableDomain(host)]
	return ok
}

// registrableDomain returns the eTLD+1 of host, or host itself for IP
// addresses, localhost and other names without a public suffix.
func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
