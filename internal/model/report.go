package model

import "time"

// PageRecord holds metadata about a single URL written to the mirror.
// One record is produced per successful fetch; records feed the database
// archive and the detailed sections of reports.
type PageRecord struct {
	// URL is the original absolute URL.
	URL string `json:"url"`

	// LocalPath is the sanitized relative path the content was written to,
	// relative to the mirror's output directory.
	LocalPath string `json:"local_path"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type from the Content-Type response header.
	ContentType string `json:"content_type"`

	// Bytes is the number of body bytes written to disk.
	Bytes int64 `json:"bytes"`

	// Depth is the crawl depth the URL was discovered at.
	Depth int `json:"depth"`

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time `json:"fetched_at"`
}

// MirrorReport is the complete result of one mirror run. It aggregates
// the final statistics, the per-page records, and the artifacts produced
// by the post-crawl steps (tree listing, archive).
type MirrorReport struct {
	// SeedURL is the URL the crawl started from.
	SeedURL string `json:"seed_url"`

	// OutputDir is the root of the produced directory tree.
	OutputDir string `json:"output_dir"`

	// Statistics is the final counters snapshot for the run.
	Statistics RunStatistics `json:"statistics"`

	// Pages holds one record per file written, in completion order.
	Pages []PageRecord `json:"pages,omitempty"`

	// Tree is the textual listing of the output directory, rendered after
	// the crawl finished. Empty until the tree step has run.
	Tree string `json:"tree,omitempty"`

	// ArchivePath is the path of the zip archive of the output directory.
	// Empty when archiving was not requested.
	ArchivePath string `json:"archive_path,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error holds the message of the error that stopped the run, if any.
	Error string `json:"error,omitempty"`
}

// NewMirrorReport creates an empty report for the given seed URL and
// output directory.
func NewMirrorReport(seedURL, outputDir string) *MirrorReport {
	return &MirrorReport{
		SeedURL:   seedURL,
		OutputDir: outputDir,
		Pages:     make([]PageRecord, 0),
	}
}
