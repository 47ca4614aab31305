package crawler

import (
	"sync/atomic"
	"time"

	"github.com/nao1215/webmirror/internal/model"
)

// Stats accumulates run counters under concurrent writers.
// Every field is updated with an atomic addition; no cross-field atomicity
// is provided. A slight skew between, say, the byte count and the file
// count while workers are mid-write is acceptable, because callers only
// act on the final snapshot taken after the queue drains.
type Stats struct {
	startedAt       time.Time
	filesProcessed  atomic.Int64
	bytesDownloaded atomic.Int64
	pagesProcessed  atomic.Int64
	errorCount      atomic.Int64
}

// NewStats creates a Stats with the clock started.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// AddFile records one file successfully written to disk.
func (s *Stats) AddFile() { s.filesProcessed.Add(1) }

// AddBytes records n body bytes downloaded.
func (s *Stats) AddBytes(n int64) { s.bytesDownloaded.Add(n) }

// AddPage records one HTML page fetched and parsed.
func (s *Stats) AddPage() { s.pagesProcessed.Add(1) }

// AddError records one absorbed per-resource failure.
func (s *Stats) AddError() { s.errorCount.Add(1) }

// Errors returns the current error count.
func (s *Stats) Errors() int64 { return s.errorCount.Load() }

// Snapshot returns a read-only copy of the counters. Elapsed time and
// throughput are computed at read time, never stored, so a snapshot is
// never stale relative to its own counters.
func (s *Stats) Snapshot() model.RunStatistics {
	now := time.Now()
	elapsed := now.Sub(s.startedAt)

	// Guard against division by a zero-length run.
	seconds := elapsed.Seconds()
	if seconds < 0.001 {
		seconds = 0.001
	}

	bytes := s.bytesDownloaded.Load()
	return model.RunStatistics{
		StartedAt:       s.startedAt,
		FinishedAt:      now,
		FilesProcessed:  s.filesProcessed.Load(),
		BytesDownloaded: bytes,
		PagesProcessed:  s.pagesProcessed.Load(),
		ErrorCount:      s.errorCount.Load(),
		Elapsed:         elapsed,
		Throughput:      float64(bytes) / seconds,
	}
}
