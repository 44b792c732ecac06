package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults should be intentional; these tests fail otherwise.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default OutputDir is mirror", func(t *testing.T) {
		t.Parallel()
		if cfg.OutputDir != "mirror" {
			t.Errorf("expected OutputDir to be 'mirror', got '%s'", cfg.OutputDir)
		}
	})

	t.Run("default MaxDepth is unlimited", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxDepth != -1 {
			t.Errorf("expected MaxDepth to be -1, got %d", cfg.MaxDepth)
		}
	})

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected Timeout to be 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("default naming is by-type", func(t *testing.T) {
		t.Parallel()
		if cfg.Naming != "by-type" {
			t.Errorf("expected Naming to be 'by-type', got %q", cfg.Naming)
		}
	})

	t.Run("robots.txt is honored by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.Robots {
			t.Error("expected Robots to be true")
		}
	})

	t.Run("default politeness settings", func(t *testing.T) {
		t.Parallel()
		if cfg.Delay != 250*time.Millisecond {
			t.Errorf("expected Delay to be 250ms, got %v", cfg.Delay)
		}
		if cfg.Concurrency != 8 {
			t.Errorf("expected Concurrency to be 8, got %d", cfg.Concurrency)
		}
		if cfg.UserAgent != DefaultUserAgent {
			t.Errorf("expected default user agent, got %q", cfg.UserAgent)
		}
	})

	t.Run("default Tor settings", func(t *testing.T) {
		t.Parallel()
		if cfg.Tor || cfg.UseExternalTor {
			t.Error("expected Tor to be off")
		}
		if cfg.TorProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected TorProxyAddress to be '127.0.0.1:9050', got '%s'", cfg.TorProxyAddress)
		}
		if cfg.TorStartupTimeout != 3*time.Minute {
			t.Errorf("expected TorStartupTimeout to be 3m, got %v", cfg.TorStartupTimeout)
		}
	})

	t.Run("default config is valid once a seed is set", func(t *testing.T) {
		t.Parallel()
		c := NewConfig()
		c.Seeds = []string{"https://example.com/"}
		if err := c.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

// TestConfigValidate tests each validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		c := NewConfig()
		c.Seeds = []string{"https://example.com/"}
		return c
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no seeds", func(c *Config) { c.Seeds = nil }, ErrNoSeeds},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, ErrNoOutputDir},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative session timeout", func(c *Config) { c.SessionTimeout = -time.Second }, ErrInvalidSessionTimeout},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"negative delay", func(c *Config) { c.Delay = -time.Millisecond }, ErrInvalidDelay},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"depth below -1", func(c *Config) { c.MaxDepth = -2 }, ErrInvalidDepth},
		{"negative asset depth", func(c *Config) { c.MaxAssetDepth = -1 }, ErrInvalidDepth},
		{"negative max pages", func(c *Config) { c.MaxPages = -1 }, ErrInvalidMaxPages},
		{"negative retries", func(c *Config) { c.Retries = -1 }, ErrInvalidRetries},
		{"unknown format", func(c *Config) { c.Format = "xml" }, ErrInvalidFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("unknown naming strategy", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Naming = "by-color"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown naming strategy")
		}
	})

	t.Run("depth zero mirrors seeds only and is valid", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.MaxDepth = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

// TestConfigForSite tests applying site overrides.
func TestConfigForSite(t *testing.T) {
	t.Parallel()

	base := NewConfig()
	base.Headers = map[string]string{"Accept-Language": "en"}

	depth := 0
	delay := time.Second
	site := base.ForSite(SiteConfig{
		Cookie:         "session=xyz",
		UserAgent:      "custom/1.0",
		Depth:          &depth,
		Delay:          &delay,
		Headers:        map[string]string{"Authorization": "Bearer token"},
		IgnorePatterns: []string{"/admin/*"},
	})

	if site.Cookie != "session=xyz" || site.UserAgent != "custom/1.0" {
		t.Errorf("string overrides not applied: %+v", site)
	}
	if site.MaxDepth != 0 {
		t.Errorf("expected depth 0, got %d", site.MaxDepth)
	}
	if site.Delay != time.Second {
		t.Errorf("expected delay 1s, got %v", site.Delay)
	}
	if site.MaxPages != base.MaxPages {
		t.Errorf("unset MaxPages should keep %d, got %d", base.MaxPages, site.MaxPages)
	}
	if len(site.Headers) != 2 || site.Headers["Accept-Language"] != "en" {
		t.Errorf("headers not merged: %v", site.Headers)
	}
	if len(base.Headers) != 1 {
		t.Errorf("base headers modified: %v", base.Headers)
	}
	if len(site.IgnorePatterns) != 1 {
		t.Errorf("expected 1 ignore pattern, got %v", site.IgnorePatterns)
	}

	same := base.ForSite(SiteConfig{})
	if same == base {
		t.Error("ForSite should return a copy")
	}
	if same.MaxDepth != base.MaxDepth || same.Cookie != base.Cookie {
		t.Error("empty site config should change nothing")
	}
}

// TestFileGetSiteConfig tests merging of defaults and site entries.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	defaultDepth := 3
	siteDepth := 0
	cf := &File{
		Defaults: SiteConfig{
			Cookie:  "default=abc",
			Depth:   &defaultDepth,
			Headers: map[string]string{"X-Default": "1"},
		},
		Sites: map[string]SiteConfig{
			"Docs.Example.com": {
				Depth:          &siteDepth,
				Headers:        map[string]string{"X-Site": "2"},
				FollowPatterns: []string{"/guide/*"},
			},
		},
	}

	t.Run("site entry matched by URL", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("https://docs.example.com/guide/")
		if sc.Depth == nil || *sc.Depth != 0 {
			t.Errorf("expected site depth 0, got %v", sc.Depth)
		}
		if sc.Cookie != "default=abc" {
			t.Errorf("expected default cookie, got %q", sc.Cookie)
		}
		if sc.Headers["X-Default"] != "1" || sc.Headers["X-Site"] != "2" {
			t.Errorf("headers not merged: %v", sc.Headers)
		}
		if len(sc.FollowPatterns) != 1 {
			t.Errorf("expected follow pattern, got %v", sc.FollowPatterns)
		}
	})

	t.Run("site entry matched by bare host", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("docs.example.com")
		if sc.Depth == nil || *sc.Depth != 0 {
			t.Errorf("expected site depth 0, got %v", sc.Depth)
		}
	})

	t.Run("unknown site gets defaults", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("https://other.example.org/")
		if sc.Depth == nil || *sc.Depth != 3 {
			t.Errorf("expected default depth 3, got %v", sc.Depth)
		}
		if len(sc.FollowPatterns) != 0 {
			t.Errorf("unexpected follow patterns: %v", sc.FollowPatterns)
		}
	})

	t.Run("merging does not modify defaults", func(t *testing.T) {
		t.Parallel()

		_ = cf.GetSiteConfig("docs.example.com")
		if _, ok := cf.Defaults.Headers["X-Site"]; ok {
			t.Error("defaults were modified")
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.sitemirror")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".sitemirror")
		content := `defaults:
  depth: -1
  delay: 500ms
  cookie: "default=abc"
sites:
  docs.example.com:
    depth: 0
    maxPages: 20
    userAgent: "custom/1.0"
    headers:
      Authorization: "Bearer token"
    ignorePatterns:
      - "/admin/*"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Defaults.Depth == nil || *cfg.Defaults.Depth != -1 {
			t.Errorf("expected default depth -1, got %v", cfg.Defaults.Depth)
		}
		if cfg.Defaults.Delay == nil || *cfg.Defaults.Delay != 500*time.Millisecond {
			t.Errorf("expected default delay 500ms, got %v", cfg.Defaults.Delay)
		}

		site, ok := cfg.Sites["docs.example.com"]
		if !ok {
			t.Fatal("expected docs.example.com in sites")
		}
		if site.Depth == nil || *site.Depth != 0 {
			t.Errorf("expected explicit depth 0, got %v", site.Depth)
		}
		if site.MaxPages == nil || *site.MaxPages != 20 {
			t.Errorf("expected maxPages 20, got %v", site.MaxPages)
		}
		if site.UserAgent != "custom/1.0" || site.Headers["Authorization"] != "Bearer token" {
			t.Errorf("unexpected site config: %+v", site)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".sitemirror")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".sitemirror")
		if err := os.WriteFile(configPath, []byte("defaults:\n  cookie: a=b\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("XDG %s dir %q should end with %q", name, dir, AppName)
		}
	}
}
