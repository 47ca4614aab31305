package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/webmirror/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor handles concurrent mirroring of multiple seed URLs.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-run execution
// 2. It allows different batch strategies (e.g., rate limiting, retries)
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each run. Each seed
	// needs its own output directory, so the factory receives the seed's
	// index in the batch.
	pipelineFactory func(index int) *Pipeline

	// reportFactory creates the empty report a run starts from, wiring
	// the seed to its per-seed output directory.
	reportFactory func(seedURL string, index int) *model.MirrorReport

	// concurrency is the maximum number of concurrent runs.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed run reports.
	// Access is synchronized via mutex.
	results []*model.MirrorReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Default is 3 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each run to create a fresh
// pipeline instance. This ensures that pipeline state doesn't leak between
// runs and allows for per-seed customization. The reportFactory supplies
// the run's starting report, which carries the seed's output directory.
func NewBatchProcessor(
	pipelineFactory func(index int) *Pipeline,
	reportFactory func(seedURL string, index int) *model.MirrorReport,
	opts ...BatchOption,
) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		reportFactory:   reportFactory,
		concurrency:     3,
		results:         make([]*model.MirrorReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch mirrors multiple seed URLs concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each seed gets its own goroutine, but only 'concurrency' goroutines
// run simultaneously.
//
// Returns all reports collected, even for seeds that failed.
// The error return indicates if the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.MirrorReport, error) {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*model.MirrorReport, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("mirroring seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			rep := bp.reportFactory(seed, i)
			pl := bp.pipelineFactory(i)
			err := pl.Execute(ctx, rep)

			// Store result regardless of error
			// The report contains error information if the run failed
			bp.mu.Lock()
			bp.results[i] = rep
			bp.mu.Unlock()

			if err != nil {
				bp.logger.Warn("run failed",
					"seed", seed,
					"error", err,
				)
				// Don't return error to errgroup - we want to continue other runs
				// The error is recorded in the report
				return nil
			}

			bp.logger.Info("run completed",
				"seed", seed,
			)

			return nil
		})
	}

	err := g.Wait()

	elapsed := time.Since(startTime)
	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", elapsed,
	)

	return bp.results, err
}

// ProcessBatchWithCallback mirrors multiple seeds and calls a callback
// for each completed run. This is useful for streaming results.
//
// The callback receives the report, the index of the seed in the original
// slice, and the run's error (nil when the run succeeded, possibly with
// tolerated step failures recorded in the report). The callback is called
// from the goroutine that completed the run, so it should be thread-safe
// if it accesses shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(rep *model.MirrorReport, index int, err error),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rep := bp.reportFactory(seed, i)
			pl := bp.pipelineFactory(i)
			callback(rep, i, pl.Execute(ctx, rep))

			return nil
		})
	}

	return g.Wait()
}
