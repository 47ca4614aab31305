package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nao1215/webmirror/internal/archive"
	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/crawler"
	"github.com/nao1215/webmirror/internal/database"
	"github.com/nao1215/webmirror/internal/history"
	"github.com/nao1215/webmirror/internal/model"
	"github.com/nao1215/webmirror/internal/report"
)

// MirrorStep runs the crawl itself: it builds an engine for the report's
// seed URL and fills the report with the crawl's statistics and per-file
// records. It is the first step of every pipeline; later steps operate
// on the directory tree it produced.
type MirrorStep struct {
	cfg *config.Config

	logger   *slog.Logger
	client   *http.Client
	progress crawler.ProgressFunc
	status   crawler.StatusFunc
}

// MirrorStepOption configures a MirrorStep.
type MirrorStepOption func(*MirrorStep)

// WithMirrorLogger sets the logger passed to the crawl engine.
func WithMirrorLogger(logger *slog.Logger) MirrorStepOption {
	return func(s *MirrorStep) {
		s.logger = logger
	}
}

// WithMirrorHTTPClient overrides the HTTP client used for all fetches.
// Intended for tests.
func WithMirrorHTTPClient(client *http.Client) MirrorStepOption {
	return func(s *MirrorStep) {
		s.client = client
	}
}

// WithMirrorProgress sets the progress fraction sink.
func WithMirrorProgress(fn crawler.ProgressFunc) MirrorStepOption {
	return func(s *MirrorStep) {
		s.progress = fn
	}
}

// WithMirrorStatus sets the status line sink.
func WithMirrorStatus(fn crawler.StatusFunc) MirrorStepOption {
	return func(s *MirrorStep) {
		s.status = fn
	}
}

// NewMirrorStep creates the crawl step for the given configuration.
func NewMirrorStep(cfg *config.Config, opts ...MirrorStepOption) *MirrorStep {
	s := &MirrorStep{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step's name for logging purposes.
func (s *MirrorStep) Name() string {
	return "mirror"
}

// Abortive marks the crawl as a step whose failure ends the run: later
// steps would only package or record an empty tree. Execute returns the
// crawl's error to the caller even when the pipeline tolerates failures
// of the post-crawl steps.
func (s *MirrorStep) Abortive() bool {
	return true
}

// Do runs the crawl and merges its results into the report.
func (s *MirrorStep) Do(ctx context.Context, rep *model.MirrorReport) error {
	engineOpts := make([]crawler.EngineOption, 0, 4)
	if s.logger != nil {
		engineOpts = append(engineOpts, crawler.WithLogger(s.logger))
	}
	if s.client != nil {
		engineOpts = append(engineOpts, crawler.WithEngineHTTPClient(s.client))
	}
	if s.progress != nil {
		engineOpts = append(engineOpts, crawler.WithProgressSink(s.progress))
	}
	if s.status != nil {
		engineOpts = append(engineOpts, crawler.WithStatusSink(s.status))
	}

	// Batch runs share one config but give each seed its own output
	// directory through the report.
	runCfg := *s.cfg
	if rep.OutputDir != "" {
		runCfg.OutputDir = rep.OutputDir
	}

	engine, err := crawler.NewEngine(&runCfg, rep.SeedURL, engineOpts...)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	if result != nil {
		rep.Statistics = result.Statistics
		rep.Pages = result.Pages
	}
	return err
}

// TreeStep renders the textual directory listing of the finished mirror
// into the report.
type TreeStep struct{}

// NewTreeStep creates the tree listing step.
func NewTreeStep() *TreeStep {
	return &TreeStep{}
}

// Name returns the step's name for logging purposes.
func (s *TreeStep) Name() string {
	return "tree"
}

// Do renders the output directory tree into the report.
func (s *TreeStep) Do(_ context.Context, rep *model.MirrorReport) error {
	tree, err := report.Tree(rep.OutputDir)
	if err != nil {
		return err
	}
	rep.Tree = tree
	return nil
}

// ArchiveStep packages the finished output directory into a zip file
// next to it and records the archive path in the report.
type ArchiveStep struct {
	// destPath overrides the derived archive path when set.
	destPath string
}

// ArchiveStepOption configures an ArchiveStep.
type ArchiveStepOption func(*ArchiveStep)

// WithArchivePath sets an explicit archive destination.
func WithArchivePath(path string) ArchiveStepOption {
	return func(s *ArchiveStep) {
		s.destPath = path
	}
}

// NewArchiveStep creates the zip packaging step.
func NewArchiveStep(opts ...ArchiveStepOption) *ArchiveStep {
	s := &ArchiveStep{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step's name for logging purposes.
func (s *ArchiveStep) Name() string {
	return "archive"
}

// Do zips the output directory and records the archive path.
func (s *ArchiveStep) Do(_ context.Context, rep *model.MirrorReport) error {
	dest := s.destPath
	if dest == "" {
		dest = archive.DefaultPath(rep.OutputDir)
	}
	if err := archive.Zip(rep.OutputDir, dest); err != nil {
		return err
	}
	rep.ArchivePath = dest
	return nil
}

// HistoryStep appends the finished run to the persistent history log.
type HistoryStep struct {
	log *history.Log
}

// NewHistoryStep creates the history logging step.
func NewHistoryStep(log *history.Log) *HistoryStep {
	return &HistoryStep{log: log}
}

// Name returns the step's name for logging purposes.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do appends the run record to the history log.
func (s *HistoryStep) Do(_ context.Context, rep *model.MirrorReport) error {
	return s.log.Append(rep)
}

// DatabaseStep persists the finished run to the SQLite archive. The
// database is opened for the duration of the save and closed again, so
// the step owns no long-lived handle.
type DatabaseStep struct {
	dbDir string
}

// NewDatabaseStep creates the database persistence step writing to the
// given directory.
func NewDatabaseStep(dbDir string) *DatabaseStep {
	return &DatabaseStep{dbDir: dbDir}
}

// Name returns the step's name for logging purposes.
func (s *DatabaseStep) Name() string {
	return "database"
}

// Do saves the run and its page records.
func (s *DatabaseStep) Do(ctx context.Context, rep *model.MirrorReport) error {
	db, err := database.Open(s.dbDir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-write handle is flushed by SaveRun's commit

	_, err = db.SaveRun(ctx, rep)
	return err
}

// DefaultPipeline assembles the standard run pipeline for a
// configuration: mirror, tree listing, then the post-processing steps
// the configuration enables.
//
// Design decision: We provide a default pipeline because:
// 1. Most users want the standard step ordering
// 2. Reduces boilerplate in the CLI
// 3. Ensures post-crawl steps never run before the crawl
//
// Post-crawl steps run with continueOnError semantics decided by the
// pipeline options; the builder only decides membership and order.
func DefaultPipeline(cfg *config.Config, pipelineOpts []Option, mirrorOpts ...MirrorStepOption) *Pipeline {
	p := New(pipelineOpts...)

	p.Add(
		NewMirrorStep(cfg, mirrorOpts...),
		NewTreeStep(),
	)

	if cfg.Archive {
		p.Add(NewArchiveStep())
	}

	p.Add(NewHistoryStep(history.New(cfg.HistoryFile)))

	if cfg.SaveToDB {
		dbDir := cfg.DBDir
		if dbDir == "" {
			dbDir = config.XDGDataDir()
		}
		p.Add(NewDatabaseStep(dbDir))
	}

	return p
}
