package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// DefaultFinalizeTimeout bounds the steps that run after the session context
// was cancelled.
const DefaultFinalizeTimeout = 30 * time.Second

// Step is one stage of a mirror session. Steps run in sequence and share the
// report, which each of them fills in further.
type Step interface {
	// Do runs the step. A returned error is recorded in the report;
	// whether later steps still run depends on the pipeline.
	Do(ctx context.Context, report *model.MirrorReport) error

	// Name identifies the step in logs and in the report.
	Name() string
}

// alwaysStep marks a step that also runs after cancellation.
type alwaysStep struct {
	Step
}

// Always wraps step so that it runs even when the session context has been
// cancelled before it, e.g. by an interrupt during the crawl. The step then
// gets a context detached from the cancellation and bounded by the
// pipeline's finalize timeout.
//
// Design decision: Export, persist and report are wrapped by DefaultPipeline
// because:
//  1. Everything fetched before the interrupt is already in the graph
//  2. A partial mirror on disk is more useful than none
//  3. The history database should show that the session was cut short
func Always(step Step) Step {
	return alwaysStep{Step: step}
}

// isAlways reports whether step was wrapped by Always.
func isAlways(step Step) bool {
	_, ok := step.(alwaysStep)
	return ok
}

// Pipeline runs the steps of one mirror session.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps running steps after one returned an error.
	continueOnError bool

	// finalizeTimeout bounds each Always step run after cancellation.
	finalizeTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running steps after one fails. The error is
// still recorded in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithFinalizeTimeout bounds each Always step that runs after cancellation.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.finalizeTimeout = d
		}
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		finalizeTimeout: DefaultFinalizeTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order and records each of them in report.Steps.
//
// Once ctx is done, report.TimedOut is set, the remaining steps are skipped
// unless they were wrapped with Always, and ctx.Err() is returned. Otherwise
// Execute returns the first step error, or nil when continueOnError is set;
// the last step error is kept in report.Error either way.
func (p *Pipeline) Execute(ctx context.Context, report *model.MirrorReport) error {
	var firstErr error

	for _, step := range p.steps {
		cancelled := ctx.Err() != nil
		if cancelled {
			// Mark before the Always steps persist or render the report.
			p.markCancelled(ctx, report)
		}
		if cancelled && !isAlways(step) {
			p.logger.Warn("step skipped after cancellation",
				"step", step.Name(),
				"session", report.SessionID,
			)
			report.Steps = append(report.Steps, model.StepRecord{Name: step.Name(), Skipped: true})
			continue
		}

		err := p.run(ctx, step, report, cancelled)
		if err == nil || ctx.Err() != nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		if !p.continueOnError {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		p.markCancelled(ctx, report)
		return err
	}
	if p.continueOnError {
		return nil
	}
	return firstErr
}

// markCancelled records that ctx ended before the session was complete.
func (p *Pipeline) markCancelled(ctx context.Context, report *model.MirrorReport) {
	report.TimedOut = true
	if report.Error == "" {
		report.Error = ctx.Err().Error()
	}
}

// run executes one step and appends its record.
func (p *Pipeline) run(ctx context.Context, step Step, report *model.MirrorReport, detached bool) error {
	stepCtx := ctx
	if detached {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), p.finalizeTimeout)
		defer cancel()
	}

	p.logger.Info("executing step",
		"step", step.Name(),
		"session", report.SessionID,
		"after_cancel", detached,
	)

	start := time.Now()
	err := step.Do(stepCtx, report)
	rec := model.StepRecord{Name: step.Name(), Duration: time.Since(start)}

	if err != nil {
		rec.Error = err.Error()
		report.Error = err.Error()
		p.logger.Error("step failed",
			"step", step.Name(),
			"session", report.SessionID,
			"error", err,
		)
	} else {
		p.logger.Debug("step completed",
			"step", step.Name(),
			"session", report.SessionID,
			"duration", rec.Duration,
		)
	}

	report.Steps = append(report.Steps, rec)
	return err
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
