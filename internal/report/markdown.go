package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/webmirror/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.MirrorReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeStatistics(md, report)
	w.writePages(md, report)
	w.writeTree(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.MirrorReport) {
	md.H1("Webmirror Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed URL", "`" + report.SeedURL + "`"},
		{"Output Directory", "`" + report.OutputDir + "`"},
		{"Started", report.Statistics.StartedAt.Format("2006-01-02 15:04:05 MST")},
	}
	if report.ArchivePath != "" {
		rows = append(rows, []string{"Archive", "`" + report.ArchivePath + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeStatistics writes the run counters section.
func (w *MarkdownWriter) writeStatistics(md *markdown.Markdown, report *model.MirrorReport) {
	stats := report.Statistics

	md.H2("Statistics")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Pages", strconv.FormatInt(stats.PagesProcessed, 10)},
			{"Files", strconv.FormatInt(stats.FilesProcessed, 10)},
			{"Downloaded", humanize.Bytes(uint64(max(stats.BytesDownloaded, 0)))}, //nolint:gosec // clamped to non-negative
			{"Errors", strconv.FormatInt(stats.ErrorCount, 10)},
			{"Elapsed", stats.Elapsed.Round(10 * time.Millisecond).String()},
		},
	})
	md.PlainText("")

	w.writeOutcomeChart(md, report)
	w.writeAlert(md, report)
}

// writeOutcomeChart writes a mermaid pie chart of the run's outcome mix.
func (w *MarkdownWriter) writeOutcomeChart(md *markdown.Markdown, report *model.MirrorReport) {
	stats := report.Statistics
	resources := stats.FilesProcessed - stats.PagesProcessed
	if stats.PagesProcessed == 0 && resources <= 0 && stats.ErrorCount == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Run Outcome"),
		piechart.WithShowData(true),
	)

	if stats.PagesProcessed > 0 {
		chart.LabelAndIntValue("Pages", uint64(stats.PagesProcessed)) //nolint:gosec // counter is non-negative
	}
	if resources > 0 {
		chart.LabelAndIntValue("Resources", uint64(resources)) //nolint:gosec // checked above
	}
	if stats.ErrorCount > 0 {
		chart.LabelAndIntValue("Errors", uint64(stats.ErrorCount)) //nolint:gosec // counter is non-negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the error count.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.MirrorReport) {
	stats := report.Statistics
	switch {
	case report.Error != "":
		md.Warningf("The run failed: %s", report.Error)
	case stats.FilesProcessed == 0:
		md.Warningf("No files were written. Check the seed URL and the error log.")
	case stats.ErrorCount > 0:
		md.Note(fmt.Sprintf(
			"%d resource(s) could not be downloaded and were skipped. The mirror is complete apart from them.",
			stats.ErrorCount,
		))
	default:
		md.Tip("All discovered resources were mirrored without errors.")
	}
	md.PlainText("")
}

// writePages writes the per-file table.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.MirrorReport) {
	md.H2("Files")
	md.PlainText("")

	if len(report.Pages) == 0 {
		md.PlainText("No files written.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Pages))
	for i, page := range report.Pages {
		rows[i] = []string{
			strconv.Itoa(page.Depth),
			truncateString(page.URL, 60),
			truncateString(page.LocalPath, 50),
			humanize.Bytes(uint64(max(page.Bytes, 0))), //nolint:gosec // clamped to non-negative
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Depth", "URL", "Local Path", "Size"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeTree writes the directory tree listing as a code block.
func (w *MarkdownWriter) writeTree(md *markdown.Markdown, report *model.MirrorReport) {
	if report.Tree == "" {
		return
	}

	md.H2("Directory Tree")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightText, report.Tree)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webmirror](https://github.com/nao1215/webmirror)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
