package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/export"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/naming"
	"github.com/nao1215/sitemirror/internal/policy"
	"github.com/nao1215/sitemirror/internal/report"
)

// MirrorStep crawls the report's seeds into a resource graph.
//
// Design decision: The step builds a fresh Policy, Namer and Session on
// every Do because:
// 1. The page budget and the local path reservations belong to one session
// 2. A batch runs the same step configuration against several sites
// 3. The transport and the robots cache are safe to share and stay outside
type MirrorStep struct {
	// transport fetches every admitted URL.
	transport crawler.Transport

	// policyOpts configure the admission policy of each session.
	policyOpts []policy.Option

	// strategy selects the local naming scheme.
	strategy naming.Strategy

	// timeout bounds one session. Zero means no limit.
	timeout time.Duration

	logger *slog.Logger
}

// MirrorStepOption configures a MirrorStep.
type MirrorStepOption func(*MirrorStep)

// WithMirrorPolicy sets the admission policy options.
func WithMirrorPolicy(opts ...policy.Option) MirrorStepOption {
	return func(s *MirrorStep) {
		s.policyOpts = append(s.policyOpts, opts...)
	}
}

// WithMirrorNaming sets the local naming strategy.
func WithMirrorNaming(strategy naming.Strategy) MirrorStepOption {
	return func(s *MirrorStep) {
		s.strategy = strategy
	}
}

// WithMirrorTimeout bounds the duration of one session. When it expires the
// resources mirrored so far are kept and the report is marked timed out.
func WithMirrorTimeout(d time.Duration) MirrorStepOption {
	return func(s *MirrorStep) {
		s.timeout = d
	}
}

// WithMirrorLogger sets a custom logger for the mirror step.
func WithMirrorLogger(logger *slog.Logger) MirrorStepOption {
	return func(s *MirrorStep) {
		s.logger = logger
	}
}

// NewMirrorStep creates a mirror step fetching through transport.
func NewMirrorStep(transport crawler.Transport, opts ...MirrorStepOption) *MirrorStep {
	s := &MirrorStep{
		transport: transport,
		strategy:  naming.ByType,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *MirrorStep) Name() string {
	return "mirror"
}

// Do mirrors report.Seeds. The session id and start time of the report are
// replaced by those of the crawl session.
func (s *MirrorStep) Do(ctx context.Context, rep *model.MirrorReport) error {
	seeds := make([]string, 0, len(rep.Seeds))
	for _, raw := range rep.Seeds {
		seed, err := crawler.SeedURL(raw)
		if err != nil {
			return err
		}
		seeds = append(seeds, seed)
	}
	rep.Seeds = seeds

	admission, err := policy.New(seeds, append([]policy.Option{policy.WithLogger(s.logger)}, s.policyOpts...)...)
	if err != nil {
		return fmt.Errorf("failed to build admission policy: %w", err)
	}

	session := crawler.NewSession()
	rep.SessionID = session.ID()
	rep.StartedAt = session.StartedAt()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var namerOpts []naming.Option
	if len(seeds) > 0 {
		namerOpts = append(namerOpts, naming.WithRoot(seeds[0]))
	}

	mirror := crawler.NewMirror(s.transport, naming.New(s.strategy, namerOpts...),
		crawler.WithAdmission(admission),
		crawler.WithLogger(s.logger),
	)
	roots, err := mirror.Run(runCtx, session, seeds)

	rep.Collect(session.Graph())
	rep.Finish()

	s.logger.Info("mirror completed",
		"session", rep.SessionID,
		"resources", rep.Stats.Total,
		"saved", rep.Stats.Saved,
		"filtered", rep.Stats.Filtered,
		"failed", rep.Stats.Failed,
		"pages", admission.Pages(),
	)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		// Interrupted. Only the Always steps still see this report.
		return err
	case errors.Is(err, context.DeadlineExceeded):
		rep.TimedOut = true
		s.logger.Warn("mirror timed out, keeping partial result",
			"session", rep.SessionID,
			"pending", rep.Stats.Pending,
		)
		return nil
	default:
		return err
	}

	for _, root := range roots {
		if root != nil {
			return nil
		}
	}
	return ErrNothingMirrored
}

// ExportStep writes the mirrored graph to disk.
type ExportStep struct {
	// root is the output directory.
	root string

	// perHost places each session under root/<host>.
	perHost bool

	logger *slog.Logger
}

// ExportStepOption configures an ExportStep.
type ExportStepOption func(*ExportStep)

// WithExportPerHost stores each session in a subdirectory named after the
// host of its first seed. Batches use this to keep sites apart.
func WithExportPerHost(perHost bool) ExportStepOption {
	return func(s *ExportStep) {
		s.perHost = perHost
	}
}

// WithExportLogger sets a custom logger for the export step.
func WithExportLogger(logger *slog.Logger) ExportStepOption {
	return func(s *ExportStep) {
		s.logger = logger
	}
}

// NewExportStep creates an export step writing below root.
func NewExportStep(root string, opts ...ExportStepOption) *ExportStep {
	s := &ExportStep{
		root:   root,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do writes every saved resource of report.Graph. Files that could not be
// written are reported in the returned error; the others stay on disk.
func (s *ExportStep) Do(ctx context.Context, rep *model.MirrorReport) error {
	if rep.Graph == nil {
		return ErrNoGraph
	}

	dir := s.root
	if s.perHost {
		if host := database.SessionHost(rep.Seeds); host != "" {
			dir = filepath.Join(dir, host)
		}
	}

	exporter, err := export.New(dir, export.WithLogger(s.logger))
	if err != nil {
		return err
	}

	result, err := exporter.Export(ctx, rep.Graph)
	rep.OutputDir = exporter.Root()
	rep.Stats.FilesWritten = result.Files

	s.logger.Info("export completed",
		"dir", rep.OutputDir,
		"files", result.Files,
		"bytes", result.Bytes,
		"skipped", result.Skipped,
	)

	return err
}

// TitleStep records the titles of the saved HTML pages.
type TitleStep struct {
	logger *slog.Logger
}

// NewTitleStep creates a title extraction step.
func NewTitleStep(logger *slog.Logger) *TitleStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &TitleStep{logger: logger}
}

// Name returns the step name.
func (s *TitleStep) Name() string {
	return "titles"
}

// Do implements Step.
func (s *TitleStep) Do(_ context.Context, rep *model.MirrorReport) error {
	n := report.ExtractTitles(rep)
	s.logger.Debug("page titles collected", "session", rep.SessionID, "titles", n)
	return nil
}

// PersistStep stores the session in the history database.
type PersistStep struct {
	db *database.MirrorDB
}

// NewPersistStep creates a persist step.
func NewPersistStep(db *database.MirrorDB) *PersistStep {
	return &PersistStep{db: db}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do implements Step.
func (s *PersistStep) Do(ctx context.Context, rep *model.MirrorReport) error {
	return s.db.SaveReport(ctx, rep)
}

// ReportStep renders the session summary.
//
// Writes are serialized so one ReportStep can be shared by pipelines
// running concurrently.
type ReportStep struct {
	writer report.Writer
	mu     sync.Mutex
}

// NewReportStep creates a report step writing through w.
func NewReportStep(w report.Writer) *ReportStep {
	return &ReportStep{writer: w}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do implements Step.
func (s *ReportStep) Do(_ context.Context, rep *model.MirrorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// DefaultPipelineConfig holds the settings of the standard pipeline.
type DefaultPipelineConfig struct {
	// OutputDir is where the mirror is written. Empty skips the export.
	OutputDir string

	// PerHostDirs stores every session under OutputDir/<host>.
	PerHostDirs bool

	// Naming is the local naming strategy.
	Naming naming.Strategy

	// Timeout bounds one session. Zero means no limit.
	Timeout time.Duration

	// Policy configures admission.
	Policy []policy.Option

	// DB stores the session history. Nil skips persisting.
	DB *database.MirrorDB

	// Writer renders the summary. Nil skips reporting.
	Writer report.Writer
}

// DefaultPipelineOption configures DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineOutputDir sets the export directory.
func WithPipelineOutputDir(dir string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OutputDir = dir
	}
}

// WithPipelinePerHostDirs enables one export subdirectory per host.
func WithPipelinePerHostDirs(perHost bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.PerHostDirs = perHost
	}
}

// WithPipelineNaming sets the local naming strategy.
func WithPipelineNaming(strategy naming.Strategy) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Naming = strategy
	}
}

// WithPipelineTimeout bounds one session.
func WithPipelineTimeout(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Timeout = d
	}
}

// WithPipelinePolicy adds admission policy options.
func WithPipelinePolicy(opts ...policy.Option) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Policy = append(c.Policy, opts...)
	}
}

// WithPipelineDatabase sets the history database.
func WithPipelineDatabase(db *database.MirrorDB) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.DB = db
	}
}

// WithPipelineWriter sets the report writer.
func WithPipelineWriter(w report.Writer) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Writer = w
	}
}

// DefaultPipeline creates the standard mirror pipeline:
// mirror, export, titles, persist and report, leaving out the steps whose
// destination is not configured. Every step after mirror is wrapped with
// Always, so an interrupted session still leaves its partial result.
//
// Design decision: The pipeline continues after a failed step so that a
// session whose export failed is still recorded and reported. Pass
// WithContinueOnError(false) in pipelineOpts to stop at the first failure.
func DefaultPipeline(transport crawler.Transport, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(append([]Option{WithContinueOnError(true)}, pipelineOpts...)...)

	cfg := &DefaultPipelineConfig{
		Naming: naming.ByType,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddStep(NewMirrorStep(transport,
		WithMirrorPolicy(cfg.Policy...),
		WithMirrorNaming(cfg.Naming),
		WithMirrorTimeout(cfg.Timeout),
		WithMirrorLogger(p.logger),
	))
	if cfg.OutputDir != "" {
		p.AddStep(Always(NewExportStep(cfg.OutputDir,
			WithExportPerHost(cfg.PerHostDirs),
			WithExportLogger(p.logger),
		)))
	}
	p.AddStep(Always(NewTitleStep(p.logger)))
	if cfg.DB != nil {
		p.AddStep(Always(NewPersistStep(cfg.DB)))
	}
	if cfg.Writer != nil {
		p.AddStep(Always(NewReportStep(cfg.Writer)))
	}

	return p
}
