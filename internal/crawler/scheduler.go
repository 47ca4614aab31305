package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/model"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives the best-effort completion fraction after every
// job dequeue. The fraction is processed/(processed+queued) and can move
// backwards when newly discovered links grow the queue; it is UI-only
// and never required to reach 1.0 mid-run.
type ProgressFunc func(fraction float64)

// StatusFunc receives a human-readable line for every job dequeued, in
// the form "level N: URL".
type StatusFunc func(message string)

// Engine drives one mirror run: it seeds the work queue, runs a fixed
// pool of workers that process pages breadth-first up to the configured
// depth, and assembles the final report.
//
// Design decision: A plain mutex-and-condition FIFO replaces a buffered
// channel for the work queue. The queue grows while being consumed (each
// page can enqueue many links), so any channel capacity chosen up front
// can deadlock a worker that blocks on send while every other worker
// blocks on receive. An unbounded slice guarded by a condition variable
// sidesteps sizing entirely and makes the termination condition (queue
// empty and no job in flight) directly observable under one lock.
type Engine struct {
	cfg      *config.Config
	seedURL  string
	resolver *Resolver
	fetcher  *Fetcher
	cache    *Cache
	stats    *Stats
	proc     *Processor
	logger   *slog.Logger

	// client overrides the default HTTP client when set (tests).
	client *http.Client

	progress ProgressFunc
	status   StatusFunc

	// maxDepth is the effective depth bound after any site profile
	// override has been applied.
	maxDepth int

	// mu guards everything below. cond is signalled whenever the queue
	// grows or outstanding drops, and broadcast on shutdown.
	mu   sync.Mutex
	cond *sync.Cond

	// queue is the FIFO of pending jobs. FIFO order gives breadth-first
	// traversal: all depth-N jobs drain before any depth-N+1 job that
	// they enqueue.
	queue []model.CrawlJob

	// outstanding counts jobs dequeued but not yet finished. The run is
	// over exactly when the queue is empty and outstanding is zero.
	outstanding int

	// processed counts finished jobs, successful or not.
	processed int

	// visited marks URLs that have been enqueued. Testing and inserting
	// under mu guarantees each URL is processed at most once per run.
	visited map[string]bool

	// records accumulates one entry per file written, in completion order.
	records []model.PageRecord

	// closed stops workers from dequeuing; set on context cancellation.
	closed bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithProgressSink sets the progress callback. Nil leaves progress
// reporting disabled.
func WithProgressSink(fn ProgressFunc) EngineOption {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithStatusSink sets the status line callback. Nil leaves status
// reporting disabled.
func WithStatusSink(fn StatusFunc) EngineOption {
	return func(e *Engine) {
		e.status = fn
	}
}

// WithLogger sets the structured logger used by the engine and its
// workers. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineHTTPClient overrides the HTTP client used for all fetches.
// Intended for tests that point the engine at an httptest server.
func WithEngineHTTPClient(client *http.Client) EngineOption {
	return func(e *Engine) {
		e.client = client
	}
}

// NewEngine validates the seed URL and assembles the crawl components
// for one run against it. Site profile overrides (cookie, headers, depth,
// user agent) for the seed's host are resolved here, once, so the rest
// of the run never consults the profile table.
func NewEngine(cfg *config.Config, seedURL string, opts ...EngineOption) (*Engine, error) {
	if err := ValidateSeedURL(seedURL); err != nil {
		return nil, err
	}

	resolver, err := NewResolver(seedURL, cfg.PreserveStructure)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		seedURL:  seedURL,
		resolver: resolver,
		stats:    NewStats(),
		cache:    NewCache(cfg.CacheExpiry),
		logger:   slog.Default(),
		maxDepth: cfg.MaxDepth,
		visited:  make(map[string]bool),
		records:  make([]model.PageRecord, 0),
	}
	e.cond = sync.NewCond(&e.mu)

	for _, opt := range opts {
		opt(e)
	}

	userAgent := cfg.UserAgent
	var profile config.SiteProfile
	if cfg.SiteProfiles != nil {
		profile = cfg.SiteProfiles.GetSiteProfile(resolver.Base().Hostname())
		if profile.Depth > 0 {
			e.maxDepth = profile.Depth
		}
		if profile.UserAgent != "" {
			userAgent = profile.UserAgent
		}
	}

	fetcherOpts := []FetcherOption{
		WithUserAgent(userAgent),
		WithMaxFileSize(cfg.MaxFileSize),
	}
	if cfg.RequestsPerSecond > 0 {
		fetcherOpts = append(fetcherOpts, WithRateLimit(cfg.RequestsPerSecond))
	}
	if profile.Cookie != "" {
		fetcherOpts = append(fetcherOpts, WithCookie(profile.Cookie))
	}
	if len(profile.Headers) > 0 {
		fetcherOpts = append(fetcherOpts, WithHeaders(profile.Headers))
	}
	if e.client != nil {
		fetcherOpts = append(fetcherOpts, WithHTTPClient(e.client))
	}
	e.fetcher = NewFetcher(cfg.Timeout, e.stats, fetcherOpts...)

	e.proc = &Processor{
		resolver:      resolver,
		fetcher:       e.fetcher,
		cache:         e.cache,
		stats:         e.stats,
		downloaded:    newPathMap(),
		logger:        e.logger,
		outputDir:     cfg.OutputDir,
		maxDepth:      e.maxDepth,
		includeImages: cfg.IncludeImages,
		includeCSS:    cfg.IncludeCSS,
		includeJS:     cfg.IncludeJS,
	}

	return e, nil
}

// Stats exposes the live counters for callers that want a mid-run
// snapshot.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Run executes the crawl and blocks until it finishes, the context is
// cancelled, or the root page fails.
//
// A fetch failure on the depth-0 seed page aborts the run with
// ErrRootPageFetch: with no root there is nothing to mirror. Failures on
// any deeper page or resource are counted and skipped.
//
// The returned report is populated even when an error is returned, so
// callers can inspect partial results after cancellation.
func (e *Engine) Run(ctx context.Context) (*model.MirrorReport, error) {
	report := model.NewMirrorReport(e.seedURL, e.cfg.OutputDir)

	if err := os.MkdirAll(e.cfg.OutputDir, 0750); err != nil {
		return report, fmt.Errorf("%w: %s: %v", ErrOutputDir, e.cfg.OutputDir, err)
	}

	seed := model.CrawlJob{URL: e.resolver.Base().String(), Depth: 0}
	e.mu.Lock()
	e.visited[seed.URL] = true
	e.queue = append(e.queue, seed)
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	// Wake up blocked workers when the context (or the group, after a
	// root failure) is cancelled. errgroup cancels gctx when Wait
	// returns, so this goroutine always exits.
	go func() {
		<-gctx.Done()
		e.shutdown()
	}()

	for range e.cfg.MaxWorkers {
		g.Go(func() error {
			return e.worker(gctx)
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	e.mu.Lock()
	report.Pages = e.records
	e.mu.Unlock()
	report.Statistics = e.stats.Snapshot()

	e.logger.Info("crawl finished",
		"seed", e.seedURL,
		"pages", report.Statistics.PagesProcessed,
		"files", report.Statistics.FilesProcessed,
		"errors", report.Statistics.ErrorCount,
	)

	return report, err
}

// worker loops dequeuing jobs until the queue drains with nothing in
// flight, or until shutdown.
func (e *Engine) worker(ctx context.Context) error {
	for {
		job, fraction, ok := e.next()
		if !ok {
			return nil
		}

		if e.status != nil {
			e.status(fmt.Sprintf("level %d: %s", job.Depth, job.URL))
		}
		if e.progress != nil {
			e.progress(fraction)
		}

		result, err := e.proc.ProcessPage(ctx, job)
		if err != nil {
			e.stats.AddError()
			e.finish(nil)
			if job.Depth == 0 {
				return fmt.Errorf("%w: %s: %w", ErrRootPageFetch, job.URL, err)
			}
			e.logger.Warn("page skipped", "url", job.URL, "depth", job.Depth, "error", err)
			continue
		}
		e.finish(result)
	}
}

// next blocks until a job is available, the run is over, or shutdown.
// The returned fraction is the progress value computed at dequeue time.
func (e *Engine) next() (model.CrawlJob, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		if e.closed {
			return model.CrawlJob{}, 0, false
		}
		if len(e.queue) > 0 {
			job := e.queue[0]
			e.queue = e.queue[1:]
			e.outstanding++
			fraction := float64(e.processed) / float64(e.processed+len(e.queue)+1)
			return job, fraction, true
		}
		if e.outstanding == 0 {
			// Nothing queued and nothing in flight: wake the other
			// workers so they observe the same state and exit.
			e.cond.Broadcast()
			return model.CrawlJob{}, 0, false
		}
		e.cond.Wait()
	}
}

// finish records a completed job: it enqueues unseen discovered links,
// appends the written-file records, and releases the outstanding slot.
func (e *Engine) finish(result *PageResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.processed++
	e.outstanding--

	if result != nil {
		e.records = append(e.records, result.Records...)
		for _, link := range result.LinkJobs {
			if e.visited[link.URL] {
				continue
			}
			e.visited[link.URL] = true
			e.queue = append(e.queue, link)
		}
	}

	e.cond.Broadcast()
}

// shutdown stops all workers: dequeued jobs finish, queued jobs are
// abandoned.
func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
}
