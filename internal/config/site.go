package config

import (
	"maps"
	"net/url"
	"strings"
	"time"
)

// SiteConfig holds site-specific configuration for one host.
// This allows customizing mirror behavior per site.
//
// Depth, MaxPages and Delay are pointers because their zero value is a
// meaningful setting ("seeds only", "unlimited", "no delay").
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Depth overrides the navigation depth limit. -1 is unlimited.
	Depth *int `yaml:"depth,omitempty"`

	// MaxPages overrides the page budget. 0 is unlimited.
	MaxPages *int `yaml:"maxPages,omitempty"`

	// Delay overrides the per-host request interval, e.g. "500ms".
	Delay *time.Duration `yaml:"delay,omitempty"`

	// IgnorePatterns are URL path globs that are never mirrored.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict navigation to matching URL paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .sitemirror configuration file.
type File struct {
	// Sites maps hosts to their site-specific configurations.
	// Keys are host names without scheme (e.g., "docs.example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a seed, which may be a URL
// or a bare host. It merges the site-specific configuration with defaults.
// Host keys match case-insensitively.
func (cf *File) GetSiteConfig(seed string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.lookup(siteHost(seed))
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Depth != nil {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxPages != nil {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.Delay != nil {
		result.Delay = siteConfig.Delay
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	if host == "" {
		return SiteConfig{}, false
	}
	if sc, ok := cf.Sites[host]; ok {
		return sc, true
	}
	for key, sc := range cf.Sites {
		if strings.EqualFold(key, host) {
			return sc, true
		}
	}
	return SiteConfig{}, false
}

// siteHost extracts the lowercase host of a URL or bare host.
func siteHost(seed string) string {
	seed = strings.TrimSpace(seed)
	if !strings.Contains(seed, "://") {
		seed = "http://" + seed
	}
	u, err := url.Parse(seed)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
