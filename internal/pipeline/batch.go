package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the number of sites mirrored at once.
const DefaultBatchConcurrency = 4

// GroupSeeds splits seeds into sites: seeds with the same host end up in one
// group, in order of first appearance. A seed without a host forms a group of
// its own.
//
// Design decision: One session per host, not per seed, because:
//  1. Two sessions on one host would fetch every shared asset twice
//  2. With per-host output directories they would overwrite each other
//  3. The history database keys sessions by host
func GroupSeeds(seeds []string) [][]string {
	groups := make([][]string, 0, len(seeds))
	index := make(map[string]int)

	for _, seed := range seeds {
		host := ""
		if u, err := url.Parse(seed); err == nil {
			host = strings.ToLower(u.Hostname())
		}
		if host == "" {
			groups = append(groups, []string{seed})
			continue
		}
		if i, ok := index[host]; ok {
			groups[i] = append(groups[i], seed)
			continue
		}
		index[host] = len(groups)
		groups = append(groups, []string{seed})
	}

	return groups
}

// BatchProcessor mirrors several independent sites concurrently, one session
// per site. Each site runs on a fresh pipeline from the factory, so no
// session state is shared between sites.
type BatchProcessor struct {
	pipelineFactory func() *Pipeline
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets how many sites are mirrored at once.
// Values below 1 keep DefaultBatchConcurrency.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor that builds one pipeline per
// site with pipelineFactory.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch mirrors every site and returns the reports in site order.
// A site that failed still has its report, with the error recorded in it;
// a site that never started because ctx ended has a nil report, and the
// returned error is then ctx.Err().
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sites [][]string) ([]*model.MirrorReport, error) {
	results := make([]*model.MirrorReport, len(sites))
	err := bp.process(ctx, sites, func(report *model.MirrorReport, index int) {
		// Every index is written by exactly one goroutine.
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback mirrors every site and calls callback as soon as
// a session is done, with the site's index in sites. The callback runs on
// the goroutine of that session and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	sites [][]string,
	callback func(report *model.MirrorReport, index int),
) error {
	return bp.process(ctx, sites, callback)
}

// process runs at most bp.concurrency sessions at a time. Failed sessions do
// not stop the others; only the end of ctx keeps sites from starting.
func (bp *BatchProcessor) process(
	ctx context.Context,
	sites [][]string,
	done func(report *model.MirrorReport, index int),
) error {
	bp.logger.Info("starting batch",
		"sites", len(sites),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seeds := range sites {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("mirroring site",
				"seeds", seeds,
				"index", i+1,
				"total", len(sites),
			)

			report := model.NewMirrorReport("", seeds)
			if err := bp.pipelineFactory().Execute(gctx, report); err != nil {
				bp.logger.Warn("site failed", "seeds", seeds, "error", err)
			} else {
				bp.logger.Info("site mirrored",
					"seeds", seeds,
					"session", report.SessionID,
					"saved", report.Stats.Saved,
				)
			}

			done(report, i)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	bp.logger.Info("batch complete",
		"sites", len(sites),
		"elapsed", time.Since(start),
	)
	return err
}
