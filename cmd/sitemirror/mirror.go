package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/naming"
	"github.com/nao1215/sitemirror/internal/pipeline"
	"github.com/nao1215/sitemirror/internal/policy"
	"github.com/nao1215/sitemirror/internal/report"
	"github.com/nao1215/sitemirror/internal/tor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errInvalidHeader is returned for a --header value without a colon.
var errInvalidHeader = errors.New("header must have the form 'Name: value'")

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror [url]...",
		Short: "Mirror one or more websites for offline browsing",
		Long: `Mirror downloads the pages of a website reachable from the seed URL,
together with every stylesheet, image, script and font they use, and writes
them to the output directory with all references rewritten to local paths.

Each seed is mirrored as its own session and recorded in the history
database. With several seeds, each site is written to a subdirectory named
after its host.

Examples:
  # Mirror a site into ./mirror
  sitemirror mirror https://example.com/

  # Mirror only the documentation, two links deep
  sitemirror mirror --depth 2 --follow "/docs/*" https://example.com/docs/

  # Mirror several sites, three at a time
  sitemirror mirror --batch 3 example.com example.org example.net

  # Keep the original directory layout and write a Markdown report
  sitemirror mirror --naming by-path --format markdown -r report.md https://example.com/

  # Mirror an onion service through an existing Tor proxy
  sitemirror mirror --external-tor 127.0.0.1:9150 http://<address>.onion/

Configuration file (.sitemirror) example:
  sites:
    intranet.example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 3
      ignorePatterns:
        - "/logout"`,
		Args: cobra.ArbitraryArgs,
		RunE: runMirrorCmd,
	}

	// Output flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory the mirror is written to")
	cmd.Flags().StringP("naming", "n", string(naming.ByType),
		"Local naming strategy: by-type (css/, images/, ...) or by-path (keep URL layout)")

	// Scope flags
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum number of links away from the seed (-1 for unlimited)")
	cmd.Flags().Int("max-asset-depth", 0,
		"Maximum chain of assets loading assets (0 for unlimited)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages per site (0 for unlimited)")
	cmd.Flags().Bool("subdomains", false,
		"Treat subdomains of the seed's domain as the same site")
	cmd.Flags().Bool("external-assets", false,
		"Download images, stylesheets and scripts hosted on other sites")
	cmd.Flags().Bool("robots", true,
		"Honor robots.txt")
	cmd.Flags().StringArray("ignore", nil,
		"URL path pattern that is never mirrored (repeatable)")
	cmd.Flags().StringArray("follow", nil,
		"Only follow links whose path matches this pattern (repeatable)")

	// Transport flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("session-timeout", 0,
		"Timeout for a whole site; what was mirrored so far is kept (0 for none)")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Minimum interval between two requests to the same host")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Number of requests in flight at once")
	cmd.Flags().Int("retries", config.DefaultRetries,
		"Retries after a transient failure")
	cmd.Flags().StringP("user-agent", "A", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request")
	cmd.Flags().StringArrayP("header", "H", nil,
		"Extra request header 'Name: value' (repeatable)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response size in bytes")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites mirrored concurrently")

	// Report flags
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Report format: "+strings.Join(config.Formats, ", "))
	cmd.Flags().StringP("report-file", "r", "",
		"Write the report to this file instead of stdout")

	// History flags
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
	cmd.Flags().Bool("no-db", false,
		"Do not record the session in the history database")

	// Tor flags
	cmd.Flags().Bool("tor", false,
		"Route requests through Tor (automatic for onion seeds)")
	cmd.Flags().StringP("external-tor", "e", "",
		"Use external Tor proxy at specified address (e.g., 127.0.0.1:9150)")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemirror in current or home directory)")

	return cmd
}

// runMirrorCmd executes the mirror command.
func runMirrorCmd(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(v, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runMirror(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildConfig creates a Config from flags and environment variables.
func buildConfig(v *viper.Viper, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	for _, arg := range args {
		seed, err := crawler.SeedURL(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", arg, err)
		}
		if err := tor.ValidateSeed(seed); err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", arg, err)
		}
		cfg.Seeds = append(cfg.Seeds, seed)
	}

	cfg.OutputDir = v.GetString("output")
	cfg.Naming = v.GetString("naming")
	cfg.MaxDepth = v.GetInt("depth")
	cfg.MaxAssetDepth = v.GetInt("max-asset-depth")
	cfg.MaxPages = v.GetInt("max-pages")
	cfg.Subdomains = v.GetBool("subdomains")
	cfg.ExternalAssets = v.GetBool("external-assets")
	cfg.Robots = v.GetBool("robots")
	cfg.IgnorePatterns = v.GetStringSlice("ignore")
	cfg.FollowPatterns = v.GetStringSlice("follow")

	cfg.Timeout = v.GetDuration("timeout")
	cfg.SessionTimeout = v.GetDuration("session-timeout")
	cfg.Delay = v.GetDuration("delay")
	cfg.Concurrency = v.GetInt("concurrency")
	cfg.Retries = v.GetInt("retries")
	cfg.UserAgent = v.GetString("user-agent")
	cfg.Cookie = v.GetString("cookie")
	cfg.MaxBodySize = v.GetInt64("max-body-size")

	headers, err := parseHeaders(v.GetStringSlice("header"))
	if err != nil {
		return nil, err
	}
	cfg.Headers = headers

	cfg.BatchSize = v.GetInt("batch")
	cfg.Format = v.GetString("format")
	cfg.ReportFile = v.GetString("report-file")
	cfg.Verbose = v.GetBool("verbose")
	cfg.LogJSON = v.GetBool("log-json")

	cfg.SaveToDB = !v.GetBool("no-db")
	cfg.DBDir = dbDir(v)

	cfg.Tor = v.GetBool("tor") || tor.HasOnionSeed(cfg.Seeds)
	if externalTor := v.GetString("external-tor"); externalTor != "" {
		cfg.Tor = true
		cfg.UseExternalTor = true
		cfg.TorProxyAddress = externalTor
	}
	cfg.TorStartupTimeout = v.GetDuration("tor-timeout")
	if cfg.Tor && !v.IsSet("timeout") {
		cfg.Timeout = config.DefaultTorTimeout
	}

	cfg.ConfigFilePath = v.GetString("config")
	siteConfigs, err := loadSiteConfigs(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	cfg.SiteConfigs = siteConfigs

	return cfg, nil
}

// loadSiteConfigs loads the per-site configuration file.
// If the user explicitly specified a path, a missing file is an error;
// otherwise an empty configuration is used.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)
	if configPath == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	siteConfigs, err := config.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return siteConfigs, nil
}

// parseHeaders converts "Name: value" pairs into a header map.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidHeader, raw)
		}
		headers[http.CanonicalHeaderKey(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// runMirror mirrors every seed of cfg.
func runMirror(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (err error) {
	logger.Info("starting mirror",
		"seeds", cfg.Seeds,
		"output", cfg.OutputDir,
		"tor", cfg.Tor,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.MirrorDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	var httpClient *http.Client
	if cfg.Tor {
		client, stopTor, err := tor.Connect(ctx, tor.Options{
			External:       cfg.UseExternalTor,
			ProxyAddress:   cfg.TorProxyAddress,
			Timeout:        cfg.Timeout,
			StartupTimeout: cfg.TorStartupTimeout,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Tor: %w", err)
		}
		defer func() {
			if err := stopTor(); err != nil {
				logger.Error("failed to stop Tor", "error", err)
			}
		}()
		httpClient = client.NewHTTPClient()
	}

	output, closeOutput, err := openReportOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOutput(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()

	writer, err := report.NewWriter(cfg.Format, output, getVersion(), cfg.Verbose)
	if err != nil {
		return err
	}

	sites := pipeline.GroupSeeds(cfg.Seeds)
	m := &mirrorRun{
		cfg:        cfg,
		sites:      sites,
		httpClient: httpClient,
		db:         db,
		writer:     writer,
		stdout:     stdout,
		perHost:    len(sites) > 1,
		logger:     logger,
	}

	if len(sites) > 1 && cfg.BatchSize > 1 {
		return m.batch(ctx)
	}
	return m.sequential(ctx)
}

// mirrorRun holds what every site of one command run shares.
type mirrorRun struct {
	cfg        *config.Config
	sites      [][]string
	httpClient *http.Client
	db         *database.MirrorDB
	writer     report.Writer
	stdout     io.Writer
	perHost    bool
	logger     *slog.Logger

	// mu serializes report output and progress lines of batch runs.
	mu sync.Mutex
}

// sequential mirrors the sites one at a time, applying the per-site
// configuration of each. All seeds of a site share the configuration of
// its first seed.
func (m *mirrorRun) sequential(ctx context.Context) error {
	var failed int
	for _, seeds := range m.sites {
		if err := ctx.Err(); err != nil {
			return err
		}

		siteCfg := m.cfg
		if m.cfg.SiteConfigs != nil {
			siteCfg = m.cfg.ForSite(m.cfg.SiteConfigs.GetSiteConfig(seeds[0]))
		}

		fmt.Fprintf(m.stdout, "Mirroring %s...\n", strings.Join(seeds, ", "))
		rep := model.NewMirrorReport("", seeds)
		p := m.pipeline(siteCfg, true)
		if err := p.Execute(ctx, rep); err != nil || rep.Error != "" {
			m.logger.Error("mirror failed", "seeds", seeds, "error", rep.Error)
			failed++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(m.stdout, "Mirror completed in %s\n\n", rep.Duration().Round(time.Millisecond))
	}

	if failed == len(m.sites) {
		return fmt.Errorf("no site could be mirrored (%d failed)", failed)
	}
	return nil
}

// batch mirrors the seeds concurrently. Per-site configuration is not
// applied because one pipeline factory serves every site.
func (m *mirrorRun) batch(ctx context.Context) error {
	fmt.Fprintf(m.stdout, "Starting batch mirror of %d sites (concurrency: %d)...\n\n",
		len(m.sites), m.cfg.BatchSize)
	startTime := time.Now()

	siteCfg := m.cfg
	if sc := m.cfg.SiteConfigs; sc != nil {
		if len(sc.Sites) > 0 {
			m.logger.Warn("batch processing uses default site config only; site-specific configs are ignored",
				"siteCount", len(sc.Sites))
			fmt.Fprintf(m.stdout, "Warning: Site-specific configurations are ignored in batch mode. Use --batch 1 to apply per-site settings.\n\n")
		}
		siteCfg = m.cfg.ForSite(sc.Defaults)
	}

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline { return m.pipeline(siteCfg, false) },
		pipeline.WithConcurrency(m.cfg.BatchSize),
		pipeline.WithBatchLogger(m.logger),
	)

	var failed int
	err := bp.ProcessBatchWithCallback(ctx, m.sites, func(rep *model.MirrorReport, index int) {
		m.mu.Lock()
		defer m.mu.Unlock()

		fmt.Fprintf(m.stdout, "[%d/%d] Mirror completed: %s\n", index+1, len(m.sites), rep.Seeds[0])
		if rep.Error != "" {
			failed++
		}
		if _, err := m.writer.Write(rep); err != nil {
			m.logger.Error("report failed", "seed", rep.Seeds[0], "error", err)
		}
	})

	fmt.Fprintf(m.stdout, "\nBatch mirror completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	if err != nil {
		return err
	}
	if failed == len(m.sites) {
		return fmt.Errorf("no site could be mirrored (%d failed)", failed)
	}
	return nil
}

// pipeline builds the pipeline of one site. withReport adds the report
// step; batch runs write reports from their callback instead.
func (m *mirrorRun) pipeline(cfg *config.Config, withReport bool) *pipeline.Pipeline {
	fetchOpts := []fetcher.Option{
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithCookie(cfg.Cookie),
		fetcher.WithHeaders(cfg.Headers),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithConcurrency(cfg.Concurrency),
		fetcher.WithDelay(cfg.Delay),
		fetcher.WithRetries(cfg.Retries, 0),
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithLogger(m.logger),
	}
	if m.httpClient != nil {
		fetchOpts = append(fetchOpts,
			fetcher.WithClient(m.httpClient),
			fetcher.WithCompression(false),
		)
	}
	transport := fetcher.New(fetchOpts...)

	policyOpts := []policy.Option{
		policy.WithMaxDepth(cfg.MaxDepth),
		policy.WithMaxAssetDepth(cfg.MaxAssetDepth),
		policy.WithMaxPages(cfg.MaxPages),
		policy.WithSubdomains(cfg.Subdomains),
		policy.WithExternalAssets(cfg.ExternalAssets),
		policy.WithIgnorePatterns(cfg.IgnorePatterns),
		policy.WithFollowPatterns(cfg.FollowPatterns),
		policy.WithLogger(m.logger),
	}
	if cfg.Robots {
		robots := policy.NewRobots(transport.Client(), cfg.UserAgent, policy.WithRobotsLogger(m.logger))
		policyOpts = append(policyOpts, policy.WithRobots(robots))
	}

	// Validate has checked the strategy name.
	strategy, _ := naming.ParseStrategy(cfg.Naming) //nolint:errcheck // validated

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineOutputDir(cfg.OutputDir),
		pipeline.WithPipelinePerHostDirs(m.perHost),
		pipeline.WithPipelineNaming(strategy),
		pipeline.WithPipelineTimeout(cfg.SessionTimeout),
		pipeline.WithPipelinePolicy(policyOpts...),
		pipeline.WithPipelineDatabase(m.db),
	}
	if withReport {
		configOpts = append(configOpts, pipeline.WithPipelineWriter(m.writer))
	}

	return pipeline.DefaultPipeline(transport,
		[]pipeline.Option{pipeline.WithLogger(m.logger)},
		configOpts...,
	)
}

// openReportOutput returns where reports are written: path, or stdout
// when path is empty.
func openReportOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	// Reports may list URLs behind a login; only the owner may read them.
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, f.Close, nil
}
