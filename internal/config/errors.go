package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSeed is returned when no seed URL is specified.
	ErrNoSeed = errors.New("no seed URL specified: provide at least one http or https URL")

	// ErrNoOutputDir is returned when no destination directory is set.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidMaxDepth is returned when the crawl depth is below 1.
	// Depth 1 is the minimum meaningful crawl: the seed page plus its
	// directly linked pages.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be at least 1")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate fetch failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxWorkers is returned when the worker pool size is not
	// positive. Zero workers would mean the crawl never progresses.
	ErrInvalidMaxWorkers = errors.New("invalid max workers: must be positive")

	// ErrInvalidBatchSize is returned when the multi-seed batch size is
	// not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxFileSize is returned when the per-resource size limit
	// is not positive.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must be positive")

	// ErrInvalidCacheExpiry is returned when the cache expiry is negative.
	// Use 0 to treat every cached entry as immediately stale.
	ErrInvalidCacheExpiry = errors.New("invalid cache expiry: must be non-negative")

	// ErrInvalidRateLimit is returned when the request rate is negative.
	// Use 0 to disable rate limiting.
	ErrInvalidRateLimit = errors.New("invalid request rate: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at a
	// time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
