package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/database"
	"github.com/nao1215/webmirror/internal/log"
	"github.com/nao1215/webmirror/internal/model"
	"github.com/nao1215/webmirror/internal/pipeline"
	"github.com/nao1215/webmirror/internal/report"
	"github.com/spf13/cobra"
)

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror [url]...",
		Short: "Download a website to a local directory tree",
		Long: `Mirror crawls a website breadth-first from the seed URL and writes it
to a local directory tree.

Pages are fetched up to the configured depth, their embedded images,
stylesheets, and scripts are downloaded, and references are rewritten
to relative paths so the mirror can be browsed offline. Cross-domain
links are left untouched.

Examples:
  # Mirror a single site one level deep
  webmirror mirror https://example.com

  # Mirror two levels deep into a chosen directory
  webmirror mirror -d 2 -o ./example https://example.com

  # Mirror several sites concurrently
  webmirror mirror https://a.example https://b.example

  # Skip scripts, produce a zip archive and a JSON report
  webmirror mirror --no-js --zip --json https://example.com

Configuration file (.webmirror) example:
  sites:
    example.com:
      cookie: "session=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 2`,
		Args: cobra.ArbitraryArgs,
		RunE: runMirrorCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringP("output", "o", "mirror",
		"Destination directory for the mirrored tree")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link-following depth from the seed")
	cmd.Flags().IntP("workers", "w", config.DefaultMaxWorkers,
		"Number of concurrent crawl workers")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Connection timeout for each request")
	cmd.Flags().Float64("rate", config.DefaultRequestsPerSecond,
		"Politeness limit in requests per second (0 disables)")
	cmd.Flags().Int64("max-file-size", config.DefaultMaxFileSize,
		"Largest single resource to download, in bytes")
	cmd.Flags().Duration("cache-expiry", config.DefaultCacheExpiry,
		"How long fetched pages stay fresh in the in-memory cache")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Bool("flat", false,
		"Do not nest pages under level_N depth directories")

	// Resource category flags
	cmd.Flags().Bool("no-images", false, "Skip image resources")
	cmd.Flags().Bool("no-css", false, "Skip stylesheet resources")
	cmd.Flags().Bool("no-js", false, "Skip script resources")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent runs when several seeds are given")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webmirror in current or home directory)")

	// Post-processing flags
	cmd.Flags().BoolP("zip", "z", false,
		"Package the finished mirror into a zip archive")
	cmd.Flags().String("history", "",
		"Run history file path (default: under the XDG data directory)")
	cmd.Flags().Bool("save-db", false,
		"Persist the run to the SQLite archive")
	cmd.Flags().String("db-dir", "",
		"SQLite archive directory (default: XDG data directory)")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip seeds whose last archived run is newer than this duration (0 disables)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runMirrorCmd executes the mirror command.
func runMirrorCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging with secret sanitization
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runMirror(ctx, cmd, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.OutputDir, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.MaxDepth, err = cmd.Flags().GetInt("depth")
	if err != nil {
		return nil, err
	}

	cfg.MaxWorkers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.RequestsPerSecond, err = cmd.Flags().GetFloat64("rate")
	if err != nil {
		return nil, err
	}

	cfg.MaxFileSize, err = cmd.Flags().GetInt64("max-file-size")
	if err != nil {
		return nil, err
	}

	cfg.CacheExpiry, err = cmd.Flags().GetDuration("cache-expiry")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	flat, err := cmd.Flags().GetBool("flat")
	if err != nil {
		return nil, err
	}
	cfg.PreserveStructure = !flat

	noImages, err := cmd.Flags().GetBool("no-images")
	if err != nil {
		return nil, err
	}
	cfg.IncludeImages = !noImages

	noCSS, err := cmd.Flags().GetBool("no-css")
	if err != nil {
		return nil, err
	}
	cfg.IncludeCSS = !noCSS

	noJS, err := cmd.Flags().GetBool("no-js")
	if err != nil {
		return nil, err
	}
	cfg.IncludeJS = !noJS

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load site profiles from the config file.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty profiles if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteProfiles, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SiteProfiles = &config.File{
			Sites: make(map[string]config.SiteProfile),
		}
	}

	cfg.Archive, err = cmd.Flags().GetBool("zip")
	if err != nil {
		return nil, err
	}

	cfg.HistoryFile, err = cmd.Flags().GetString("history")
	if err != nil {
		return nil, err
	}

	cfg.SaveToDB, err = cmd.Flags().GetBool("save-db")
	if err != nil {
		return nil, err
	}

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	cfg.SkipRecent, err = cmd.Flags().GetDuration("skip-recent")
	if err != nil {
		return nil, err
	}

	if cfg.DBDir == "" && (cfg.SaveToDB || cfg.SkipRecent > 0) {
		cfg.DBDir = config.XDGDataDir()
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("report")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Positional arguments are the seed URLs
	cfg.Seeds = args

	return cfg, nil
}

// runMirror executes the mirror run(s).
func runMirror(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.Seeds) == 0 {
		return errors.New("no seeds provided (specify one or more URLs as arguments)")
	}

	logger.Info("starting mirror",
		"seeds", cfg.Seeds,
		"depth", cfg.MaxDepth,
		"workers", cfg.MaxWorkers,
		"batchSize", cfg.BatchSize,
	)

	if cfg.SkipRecent > 0 {
		seeds, err := dropRecentSeeds(ctx, cmd, cfg, logger)
		if err != nil {
			return err
		}
		cfg.Seeds = seeds
		if len(cfg.Seeds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All seeds were mirrored recently; nothing to do.")
			return nil
		}
	}

	if len(cfg.Seeds) > 1 && cfg.BatchSize > 1 {
		return runBatchMirror(ctx, cmd, cfg, logger)
	}
	return runSequentialMirror(ctx, cmd, cfg, logger)
}

// dropRecentSeeds filters out seeds whose last archived run falls inside
// the skip window. A missing archive skips nothing: there is no record to
// consult yet.
func dropRecentSeeds(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) ([]string, error) {
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	mdb, err := database.Open(cfg.DBDir, opts)
	if err != nil {
		logger.Debug("no run archive to consult", "dir", cfg.DBDir, "error", err)
		return cfg.Seeds, nil
	}
	defer mdb.Close() //nolint:errcheck // read-only session, close errors are not actionable

	kept := make([]string, 0, len(cfg.Seeds))
	for _, seed := range cfg.Seeds {
		recent, err := mdb.HasRecentRun(ctx, seed, cfg.SkipRecent)
		if err != nil {
			return nil, fmt.Errorf("failed to check run archive for %s: %w", seed, err)
		}
		if recent {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipping %s (mirrored within %s)\n", seed, cfg.SkipRecent)
			continue
		}
		kept = append(kept, seed)
	}
	return kept, nil
}

// runSequentialMirror mirrors seeds one at a time. A failed run does not
// stop the remaining seeds, but it fails the command: the caller gets a
// non-nil error once all seeds were attempted.
func runSequentialMirror(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	var failed int
	var firstErr error

	for i, seed := range cfg.Seeds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rep := model.NewMirrorReport(seed, seedOutputDir(cfg, seed, i))
		p := createPipelineForSeed(cmd, cfg, logger)

		fmt.Fprintf(cmd.OutOrStdout(), "Mirroring %s...\n", seed)
		startTime := time.Now()

		if err := p.Execute(ctx, rep); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Error("mirror failed", "seed", seed, "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "Mirror failed for %s: %v\n", seed, err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		elapsed := time.Since(startTime)
		fmt.Fprintf(cmd.OutOrStdout(), "Mirror completed in %s\n\n", elapsed.Round(time.Millisecond))

		if err := outputReport(cfg, rep); err != nil {
			logger.Error("report failed", "seed", seed, "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d mirror run(s) failed: %w", failed, len(cfg.Seeds), firstErr)
	}
	return nil
}

// runBatchMirror mirrors multiple seeds concurrently using BatchProcessor.
func runBatchMirror(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	fmt.Fprintf(cmd.OutOrStdout(), "Starting batch mirror of %d seeds (concurrency: %d)...\n\n",
		len(cfg.Seeds), cfg.BatchSize)

	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(
		func(_ int) *pipeline.Pipeline {
			return createPipelineForSeed(cmd, cfg, logger)
		},
		func(seedURL string, index int) *model.MirrorReport {
			return model.NewMirrorReport(seedURL, seedOutputDir(cfg, seedURL, index))
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Process with callback for streaming output
	var mu sync.Mutex
	var failed int
	err := bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(rep *model.MirrorReport, index int, runErr error) {
		mu.Lock()
		defer mu.Unlock()

		if runErr != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Mirror failed: %s (%v)\n", index+1, len(cfg.Seeds), rep.SeedURL, runErr)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] Mirror completed: %s\n", index+1, len(cfg.Seeds), rep.SeedURL)
		}

		if err := outputReport(cfg, rep); err != nil {
			logger.Error("report failed", "seed", rep.SeedURL, "error", err)
		}
	})

	elapsed := time.Since(startTime)
	fmt.Fprintf(cmd.OutOrStdout(), "\nBatch mirror completed in %s\n", elapsed.Round(time.Millisecond))

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d mirror run(s) failed", failed, len(cfg.Seeds))
	}
	return nil
}

// seedOutputDir derives the destination directory for one seed. A single
// seed uses the configured directory directly; multiple seeds get a
// per-host subdirectory so their trees don't interleave.
func seedOutputDir(cfg *config.Config, seed string, index int) string {
	if len(cfg.Seeds) <= 1 {
		return cfg.OutputDir
	}

	sub := fmt.Sprintf("seed-%d", index+1)
	if u, err := url.Parse(seed); err == nil && u.Hostname() != "" {
		sub = u.Hostname()
	}
	return filepath.Join(cfg.OutputDir, sub)
}

// createPipelineForSeed creates the run pipeline with progress reporting
// wired to the terminal.
func createPipelineForSeed(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) *pipeline.Pipeline {
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	}

	mirrorOpts := []pipeline.MirrorStepOption{
		pipeline.WithMirrorLogger(logger),
	}
	if cfg.Verbose {
		mirrorOpts = append(mirrorOpts,
			pipeline.WithMirrorStatus(func(message string) {
				fmt.Fprintln(cmd.ErrOrStderr(), message)
			}),
			pipeline.WithMirrorProgress(func(fraction float64) {
				fmt.Fprintf(cmd.ErrOrStderr(), "progress: %3.0f%%\n", fraction*100)
			}),
		)
	}

	return pipeline.DefaultPipeline(cfg, pipelineOpts, mirrorOpts...)
}

// outputReport outputs the run report in the requested format.
func outputReport(cfg *config.Config, rep *model.MirrorReport) error {
	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // writer errors surface from Write below
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output)
	}

	_, err := writer.Write(rep)
	return err
}
