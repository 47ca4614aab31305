package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Where a value mirrors an original site
// default (timeouts, chunk sizes, security limits) the rationale is noted
// on the constant.
const (
	// DefaultTimeout is the per-request timeout. 30 seconds is generous
	// enough for slow shared hosting while still bounding a stuck fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxDepth limits link following to one hop from the seed.
	// Depth 1 mirrors the seed page plus directly linked pages; deeper
	// crawls must be requested explicitly.
	DefaultMaxDepth = 1

	// DefaultMaxWorkers is the size of the crawl worker pool. Five
	// concurrent fetches saturate most small sites without looking like
	// an attack to the origin server.
	DefaultMaxWorkers = 5

	// DefaultBatchSize is the number of seeds mirrored concurrently when
	// several seed URLs are given on the command line.
	DefaultBatchSize = 3

	// DefaultCacheExpiry is how long an in-memory cache entry stays
	// fresh. One hour effectively means "for the whole run" for typical
	// runs while still bounding staleness for very long crawls.
	DefaultCacheExpiry = time.Hour

	// DefaultMaxFileSize is the largest single resource the fetcher will
	// write to disk. Oversized resources are rejected and counted as
	// errors rather than truncated.
	DefaultMaxFileSize = 50 * 1024 * 1024 // 50MB

	// DefaultChunkSize is the copy granularity for streaming response
	// bodies to disk. 8 KiB bounds peak memory per worker.
	DefaultChunkSize = 8 * 1024

	// DefaultUserAgent identifies webmirror in HTTP requests. A
	// descriptive User-Agent lets site operators identify mirror traffic
	// in their logs.
	DefaultUserAgent = "webmirror/1.0 (+https://github.com/nao1215/webmirror)"

	// DefaultRequestsPerSecond is the politeness rate limit shared by all
	// workers. Ten requests per second is fast enough for mirroring while
	// staying well below abusive request rates.
	DefaultRequestsPerSecond = 10

	// AppName is the application name used for XDG directory paths.
	AppName = "webmirror"

	// MaxSeedURLLength is the longest accepted seed URL. 2048 is the
	// conventional practical URL length limit.
	MaxSeedURLLength = 2048
)

// BlockedExtensions are file extensions the fetcher refuses to write to
// disk when they appear on embedded resources. Server-side source and
// executables have no place in a static mirror; blocking them is a
// security policy, so violations are counted as errors.
var BlockedExtensions = map[string]bool{
	".exe": true,
	".dll": true,
	".bat": true,
	".cmd": true,
	".sh":  true,
	".msi": true,
}

// Config holds all configuration options for one webmirror invocation.
// This struct is populated from CLI flags and the optional config file and
// passed through the application via dependency injection rather than
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant
// benefit.
type Config struct {
	// OutputDir is the destination root for the mirrored directory tree.
	// Failure to create it is fatal to the run.
	OutputDir string

	// PreserveStructure nests pages discovered at depth N under a
	// level_N directory, avoiding collisions between same-named pages at
	// different depths.
	PreserveStructure bool

	// IncludeImages enables downloading of image resources
	// (img, source, video poster, audio elements).
	IncludeImages bool

	// IncludeCSS enables downloading of stylesheet resources.
	IncludeCSS bool

	// IncludeJS enables downloading of script resources.
	IncludeJS bool

	// MaxDepth is the maximum number of link-following hops from the
	// seed. Must be at least 1.
	MaxDepth int

	// Timeout is the per-request timeout applied to each fetch.
	Timeout time.Duration

	// MaxWorkers is the size of the crawl worker pool.
	MaxWorkers int

	// BatchSize is the number of seeds mirrored concurrently when more
	// than one seed URL is supplied.
	BatchSize int

	// CacheExpiry is how long an in-memory cache entry is served without
	// a network call.
	CacheExpiry time.Duration

	// MaxFileSize is the largest single resource written to disk, in
	// bytes. Larger resources are rejected and counted as errors.
	MaxFileSize int64

	// RequestsPerSecond is the politeness rate limit shared by all
	// workers. Zero disables rate limiting.
	RequestsPerSecond float64

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file. If empty, the
	// tool searches for .webmirror in the current directory and then in
	// the user's home directory.
	ConfigFilePath string

	// SiteProfiles holds per-site configurations loaded from the config
	// file (custom headers, cookie, depth overrides).
	SiteProfiles *File

	// JSONReport enables JSON report output instead of the human-readable
	// format. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of the
	// human-readable format. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report. When set, the
	// report is written there instead of stdout.
	ReportFile string

	// Archive enables zip packaging of the finished output directory.
	Archive bool

	// HistoryFile is the append-only JSON-lines run history file.
	// When empty, the default under the XDG data directory is used.
	HistoryFile string

	// DBDir is the directory for the SQLite archive of runs and pages.
	// When empty, runs are not persisted to the database.
	DBDir string

	// SaveToDB indicates whether to save run results to the database.
	SaveToDB bool

	// SkipRecent skips any seed whose last archived run is newer than
	// this window. Zero or negative disables the check.
	SkipRecent time.Duration

	// Seeds is the list of seed URLs to mirror. Must contain at least
	// one valid http or https URL.
	Seeds []string
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use
// cases. Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeout, worker count,
// include toggles). This also serves as documentation of what the
// defaults are.
func NewConfig() *Config {
	return &Config{
		PreserveStructure: true,
		IncludeImages:     true,
		IncludeCSS:        true,
		IncludeJS:         true,
		MaxDepth:          DefaultMaxDepth,
		Timeout:           DefaultTimeout,
		MaxWorkers:        DefaultMaxWorkers,
		BatchSize:         DefaultBatchSize,
		CacheExpiry:       DefaultCacheExpiry,
		MaxFileSize:       DefaultMaxFileSize,
		RequestsPerSecond: DefaultRequestsPerSecond,
		UserAgent:         DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for webmirror.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/webmirror
// On macOS: ~/Library/Application Support/webmirror
// On Windows: %LOCALAPPDATA%\webmirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for webmirror.
// On Linux: ~/.config/webmirror
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
// The first error found is returned rather than collecting all errors,
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}

	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	if c.MaxDepth < 1 {
		return ErrInvalidMaxDepth
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxWorkers <= 0 {
		return ErrInvalidMaxWorkers
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.MaxFileSize <= 0 {
		return ErrInvalidMaxFileSize
	}

	if c.CacheExpiry < 0 {
		return ErrInvalidCacheExpiry
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRateLimit
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}
