package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/sitemirror/internal/naming"
)

// Default configuration values.
const (
	// DefaultOutputDir is the directory the mirror is written to.
	DefaultOutputDir = "mirror"

	// DefaultTimeout bounds one HTTP request attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultTorTimeout is the request timeout in Tor mode. Tor connections
	// are slower because of the multiple relay hops.
	DefaultTorTimeout = 120 * time.Second

	// DefaultMaxDepth of -1 follows navigation links without limit.
	// The same-site check and MaxPages keep the crawl bounded.
	DefaultMaxDepth = -1

	// DefaultMaxPages is the number of HTML pages mirrored per session.
	// This prevents runaway crawling on large or infinitely-generating sites.
	DefaultMaxPages = 500

	// DefaultConcurrency is the number of requests in flight at once.
	DefaultConcurrency = 8

	// DefaultRetries is the number of retries after a transient failure.
	DefaultRetries = 2

	// DefaultBatchSize is the number of sites mirrored concurrently.
	DefaultBatchSize = 4

	// DefaultDelay is the minimum interval between two requests to one host.
	// This is a politeness setting to avoid overwhelming small servers.
	DefaultDelay = 250 * time.Millisecond

	// DefaultUserAgent identifies sitemirror in HTTP requests.
	DefaultUserAgent = "sitemirror/1.0 (+https://github.com/nao1215/sitemirror)"

	// DefaultMaxBodySize limits one response body. Larger responses fail
	// instead of being truncated.
	DefaultMaxBodySize = 20 * 1024 * 1024 // 20MB

	// DefaultFormat is the report format.
	DefaultFormat = "text"

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "sitemirror"
)

// Formats lists the accepted report formats.
var Formats = []string{"text", "markdown", "json"}

// Config holds all configuration options for sitemirror.
// This struct is populated from CLI flags (and SITEMIRROR_* environment
// variables) and passed through the application rather than kept as
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., PolicyConfig, TransportConfig) for simplicity. Each field maps to
// exactly one flag.
type Config struct {
	// Seeds are the URLs the mirror starts from. A scheme-less seed is
	// treated as http.
	Seeds []string

	// OutputDir is where the mirror is written.
	OutputDir string

	// MaxDepth caps how many navigation links away from a seed a page may
	// be. 0 mirrors only the seeds and their assets; -1 is unlimited.
	MaxDepth int

	// MaxAssetDepth caps chains of assets referencing assets (a stylesheet
	// importing a stylesheet that loads a font). 0 is unlimited.
	MaxAssetDepth int

	// MaxPages is the number of HTML pages mirrored per session, seeds
	// included. 0 is unlimited.
	MaxPages int

	// Naming is the local naming strategy ("by-type" or "by-path").
	Naming string

	// Subdomains treats every host under a seed's registrable domain as
	// the same site.
	Subdomains bool

	// ExternalAssets admits assets (images, stylesheets, scripts) served
	// from other sites. Navigation never leaves the site.
	ExternalAssets bool

	// Robots honors robots.txt.
	Robots bool

	// IgnorePatterns are URL path globs that are never mirrored.
	IgnorePatterns []string

	// FollowPatterns restrict navigation to matching URL paths.
	// Empty follows every path.
	FollowPatterns []string

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// SessionTimeout bounds a whole session. 0 means no limit. When it
	// expires the resources mirrored so far are still exported.
	SessionTimeout time.Duration

	// Delay is the minimum interval between two requests to one host.
	Delay time.Duration

	// Concurrency is the number of requests in flight at once.
	Concurrency int

	// Retries is the number of retries after a transient failure.
	Retries int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Cookie is sent with every request, e.g. to mirror a logged-in area.
	Cookie string

	// Headers are extra request headers.
	Headers map[string]string

	// MaxBodySize is the maximum response body size in bytes.
	// Set to 0 to use the default.
	MaxBodySize int64

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// LogJSON selects the JSON log handler.
	LogJSON bool

	// Format is the report format: text, markdown or json.
	Format string

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// BatchSize is the number of sites mirrored concurrently when several
	// seeds are given with --batch.
	BatchSize int

	// DBDir is the directory of the SQLite history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB stores every session in the history database.
	SaveToDB bool

	// Tor routes every request through Tor. It is switched on
	// automatically when a seed is an onion address.
	Tor bool

	// UseExternalTor uses the proxy at TorProxyAddress instead of starting
	// an embedded Tor daemon.
	UseExternalTor bool

	// TorProxyAddress is the address of an external Tor SOCKS5 proxy.
	TorProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches the current directory, the home
	// directory and the XDG config directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, depth).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		OutputDir:         DefaultOutputDir,
		MaxDepth:          DefaultMaxDepth,
		MaxPages:          DefaultMaxPages,
		Naming:            string(naming.ByType),
		Robots:            true,
		Timeout:           DefaultTimeout,
		Delay:             DefaultDelay,
		Concurrency:       DefaultConcurrency,
		Retries:           DefaultRetries,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		Format:            DefaultFormat,
		BatchSize:         DefaultBatchSize,
		SaveToDB:          true,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for sitemirror.
// On Linux: ~/.local/share/sitemirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemirror.
// On Linux: ~/.config/sitemirror
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for sitemirror.
// On Linux: ~/.cache/sitemirror
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// We return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.SessionTimeout < 0 {
		return ErrInvalidSessionTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxDepth < -1 || c.MaxAssetDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}
	if _, err := naming.ParseStrategy(c.Naming); err != nil {
		return err
	}
	return nil
}

// ForSite returns a copy of c with the overrides of sc applied.
// Headers are merged; every other non-empty field of sc replaces the
// corresponding field of c.
func (c *Config) ForSite(sc SiteConfig) *Config {
	out := *c

	if sc.Cookie != "" {
		out.Cookie = sc.Cookie
	}
	if sc.UserAgent != "" {
		out.UserAgent = sc.UserAgent
	}
	if sc.Depth != nil {
		out.MaxDepth = *sc.Depth
	}
	if sc.MaxPages != nil {
		out.MaxPages = *sc.MaxPages
	}
	if sc.Delay != nil {
		out.Delay = *sc.Delay
	}
	if len(sc.Headers) > 0 {
		out.Headers = make(map[string]string, len(c.Headers)+len(sc.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
		for k, v := range sc.Headers {
			out.Headers[k] = v
		}
	}
	if len(sc.IgnorePatterns) > 0 {
		out.IgnorePatterns = sc.IgnorePatterns
	}
	if len(sc.FollowPatterns) > 0 {
		out.FollowPatterns = sc.FollowPatterns
	}

	return &out
}
