package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/webmirror/internal/model"
)

// Step is one stage of a mirror run. Steps execute in sequence and share
// the run's report: each step reads what earlier steps produced and adds
// its own results.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
// 3. It's more extensible for future features (e.g., priority, dependencies)
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the report to modify.
	// Returns an error if the step fails critically; non-critical errors
	// should be recorded in the report and return nil.
	Do(ctx context.Context, report *model.MirrorReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// abortiveStep is optionally implemented by steps whose failure leaves
// nothing for later steps to work on. Execute returns their error even
// when the pipeline tolerates errors, so the caller always learns that
// the run as a whole failed.
type abortiveStep interface {
	Abortive() bool
}

// Pipeline runs an ordered list of steps against one report.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps later steps running after a tolerable step
	// failure. Failures of abortive steps end the run regardless.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to keep executing steps
// after a tolerable failure. Failed steps are logged and their errors
// recorded in the report.
//
// Design decision: This option exists because post-crawl failures (e.g.
// the history file being unwritable) shouldn't discard a finished
// mirror. It never overrides an abortive step: when the crawl itself
// fails there is nothing for the remaining steps to package or record,
// and Execute reports the failure to the caller.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline. Steps are appended with Add.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Add appends steps to the pipeline in execution order.
func (p *Pipeline) Add(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the pipeline's steps in order against the report.
//
// Design decision: We check context.Done() before each step rather than
// during, because steps should handle their own timeouts. This allows
// graceful cleanup between steps while still respecting cancellation.
//
// A non-nil return means the run failed: the context was cancelled, a
// step failed while continueOnError is off, or an abortive step failed.
// Tolerated step failures leave their message in the report's Error
// field and Execute returns nil.
func (p *Pipeline) Execute(ctx context.Context, report *model.MirrorReport) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("run cancelled",
				"step", step.Name(),
				"reason", err,
			)
			report.Error = err.Error()
			return err
		}

		if err := p.runStep(ctx, step, report); err != nil {
			return err
		}
	}

	return nil
}

// runStep executes one step, records it in the report, and decides
// whether its failure ends the run.
func (p *Pipeline) runStep(ctx context.Context, step Step, report *model.MirrorReport) error {
	p.logger.Info("executing step",
		"step", step.Name(),
		"seed", report.SeedURL,
	)

	err := step.Do(ctx, report)
	if err == nil {
		p.logger.Debug("step completed",
			"step", step.Name(),
			"seed", report.SeedURL,
		)
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
		return nil
	}

	p.logger.Error("step failed",
		"step", step.Name(),
		"seed", report.SeedURL,
		"error", err,
	)
	report.Error = err.Error()

	if a, ok := step.(abortiveStep); ok && a.Abortive() {
		return err
	}
	if !p.continueOnError {
		return err
	}

	report.PerformedSteps = append(report.PerformedSteps, step.Name())
	return nil
}
