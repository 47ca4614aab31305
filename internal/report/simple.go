package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/webmirror/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showPages controls whether the per-file listing is shown.
	showPages bool

	// showTree controls whether the directory tree listing is shown.
	showTree bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithPages enables the per-file listing section.
func WithPages(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showPages = show
	}
}

// WithTree enables the directory tree section.
func WithTree(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showTree = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showPages:  false,
		showTree:   true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.MirrorReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeStatistics(&sb, report)
	if w.showPages {
		w.writePages(&sb, report)
	}
	if w.showTree && report.Tree != "" {
		w.writeTree(&sb, report)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.MirrorReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         WEBMIRROR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Seed URL:    %s\n", report.SeedURL))
	sb.WriteString(fmt.Sprintf("Output Dir:  %s\n", report.OutputDir))
	sb.WriteString(fmt.Sprintf("Started:     %s\n", report.Statistics.StartedAt.Format("2006-01-02 15:04:05 MST")))
	if report.ArchivePath != "" {
		sb.WriteString(fmt.Sprintf("Archive:     %s\n", report.ArchivePath))
	}
	if report.Error != "" {
		sb.WriteString("Status:      FAILED\n")
		sb.WriteString(fmt.Sprintf("Error:       %s\n", report.Error))
	}
	sb.WriteString("\n")
}

// writeStatistics writes the run counters section.
func (w *SimpleWriter) writeStatistics(sb *strings.Builder, report *model.MirrorReport) {
	stats := report.Statistics

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("STATISTICS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Pages:       %d\n", stats.PagesProcessed))
	sb.WriteString(fmt.Sprintf("  Files:       %d\n", stats.FilesProcessed))
	sb.WriteString(fmt.Sprintf("  Downloaded:  %s\n", humanize.Bytes(uint64(max(stats.BytesDownloaded, 0))))) //nolint:gosec // clamped to non-negative
	sb.WriteString(fmt.Sprintf("  Errors:      %d\n", stats.ErrorCount))
	sb.WriteString(fmt.Sprintf("  Elapsed:     %.2fs\n", stats.Elapsed.Seconds()))
	sb.WriteString(fmt.Sprintf("  Throughput:  %s/s\n", humanize.Bytes(uint64(max(int64(stats.Throughput), 0))))) //nolint:gosec // clamped to non-negative
	sb.WriteString("\n")
}

// writePages writes the per-file listing.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.MirrorReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FILES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Pages) == 0 {
		sb.WriteString("  No files written\n")
	}
	for _, page := range report.Pages {
		sb.WriteString(fmt.Sprintf("  [%d] %s -> %s (%s)\n",
			page.Depth, page.URL, page.LocalPath, humanize.Bytes(uint64(max(page.Bytes, 0))))) //nolint:gosec // clamped to non-negative
	}
	sb.WriteString("\n")
}

// writeTree writes the directory tree listing.
func (w *SimpleWriter) writeTree(sb *strings.Builder, report *model.MirrorReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("DIRECTORY TREE\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
	sb.WriteString(report.Tree)
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webmirror\n")
	sb.WriteString("https://github.com/nao1215/webmirror\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
