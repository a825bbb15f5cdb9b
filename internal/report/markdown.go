package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/imgopt/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
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
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSites(md, report)
	w.writeAlert(md, report)
	w.writeFailures(md, report)
	w.writeMetadata(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("imgopt Report")
	md.PlainText("")

	total := report.Totals()
	mode := "optimize"
	if report.Options.DryRun {
		mode = "dry-run"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root", "`" + report.Options.Root + "`"},
			{"Started", report.StartedAt.Format(timeLayout)},
			{"Duration", formatDuration(report.Duration())},
			{"Mode", mode},
			{"Sites", strconv.Itoa(len(report.Sites))},
			{"Saved", humanize.IBytes(nonNegative(total.Saved())) + " (" + formatPercent(total.SavedPercent()) + ")"},
		},
	})
	md.PlainText("")
}

// writeSites writes one table row per site and the savings chart.
func (w *MarkdownWriter) writeSites(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Sites")
	md.PlainText("")

	if len(report.Sites) == 0 {
		md.PlainText("No sites with images were found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.Sites)+1)
	for i := range report.Sites {
		rows = append(rows, siteRow(&report.Sites[i], "`"+report.Sites[i].Name+"`"))
	}
	total := report.Totals()
	rows = append(rows, siteRow(&total, "**Total**"))

	md.Table(markdown.TableSet{
		Header: []string{"Site", "Before", "After", "Saved", "%", "Processed", "Skipped", "Failed", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, report)
}

// siteRow renders the counters of a summary as a table row.
func siteRow(s *model.SiteSummary, label string) []string {
	return []string{
		label,
		humanize.IBytes(nonNegative(s.BytesBefore)),
		humanize.IBytes(nonNegative(s.BytesAfter)),
		humanize.IBytes(nonNegative(s.Saved())),
		formatPercent(s.SavedPercent()),
		strconv.Itoa(s.FilesProcessed),
		strconv.Itoa(s.FilesSkipped),
		strconv.Itoa(s.FilesFailed),
		siteStatus(s),
	}
}

// writePieChart writes a mermaid pie chart of the bytes saved per site.
// Sites that saved nothing are left out.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.RunReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Bytes Saved per Site"),
		piechart.WithShowData(true),
	)

	slices := 0
	for i := range report.Sites {
		s := &report.Sites[i]
		if s.Saved() <= 0 {
			continue
		}
		chart.LabelAndIntValue(s.Name, uint64(s.Saved()))
		slices++
	}
	if slices == 0 {
		return
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst condition of the run.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	total := report.Totals()

	switch {
	case report.FailedSites() > 0:
		md.Cautionf("%d site(s) could not be processed. See the errors below.", report.FailedSites())
	case total.FilesFailed > 0:
		md.Warningf("%d file(s) failed to optimize and will be retried on the next run.", total.FilesFailed)
	case total.BackupFailures > 0:
		md.Warningf("%d file(s) were optimized without a backup copy.", total.BackupFailures)
	case total.MetadataFiles > 0:
		md.Importantf("%d JPEG file(s) carried sensitive EXIF metadata that was stripped.", total.MetadataFiles)
	case report.Options.DryRun:
		md.Note("Dry run: no file was modified.")
	default:
		md.Tip("All images were processed successfully.")
	}
	md.PlainText("")
}

// writeFailures lists site errors and failed files.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.RunReport) {
	var items []string
	for i := range report.Sites {
		s := &report.Sites[i]
		if s.Failed() {
			items = append(items, "`"+s.SiteRoot+"`: "+s.Error)
		}
		for _, r := range failedFiles(s) {
			items = append(items, "`"+r.File.Path+"`: "+r.Reason)
		}
	}
	if len(items) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")
	md.BulletList(items...)
	md.PlainText("")
}

// writeMetadata writes a table of sensitive tags per file.
func (w *MarkdownWriter) writeMetadata(md *markdown.Markdown, report *model.RunReport) {
	var rows [][]string
	for i := range report.Sites {
		for _, r := range metadataFiles(&report.Sites[i]) {
			names := make([]string, len(r.Metadata))
			for j, tag := range r.Metadata {
				names[j] = tag.Name
			}
			rows = append(rows, []string{
				"`" + r.File.Path + "`",
				model.HighestSeverity(r.Metadata).String(),
				truncateString(strings.Join(names, ", "), 60),
			})
		}
	}
	if len(rows) == 0 {
		return
	}

	md.H2("Sensitive Metadata")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"File", "Severity", "Tags"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [imgopt](https://github.com/nao1215/imgopt)*")
}

// formatPercent renders p with two decimals.
func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64) + "%"
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
