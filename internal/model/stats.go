package model

import "time"

// RunStatistics is the read-only snapshot of one mirror run's counters.
// It is produced by the statistics aggregator at completion (or on demand
// for progress display) and consumed by report writers, the history log,
// and the database archive.
//
// Elapsed and Throughput are computed at snapshot time rather than stored,
// so a snapshot is never stale relative to its own counters.
type RunStatistics struct {
	// StartedAt is the wall-clock time the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is the wall-clock time the snapshot was taken.
	// For the final snapshot this is the end of the run.
	FinishedAt time.Time `json:"finished_at"`

	// FilesProcessed is the number of files successfully written to disk,
	// pages and embedded resources alike.
	FilesProcessed int64 `json:"files_processed"`

	// BytesDownloaded is the total number of body bytes written to disk.
	BytesDownloaded int64 `json:"bytes_downloaded"`

	// PagesProcessed is the number of HTML pages fetched and parsed.
	PagesProcessed int64 `json:"pages_processed"`

	// ErrorCount is the number of per-resource failures absorbed during
	// the run. A run with ErrorCount > 0 may still succeed overall.
	ErrorCount int64 `json:"error_count"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`

	// Throughput is the average download speed in bytes per second.
	Throughput float64 `json:"throughput"`
}
