package report

import (
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/imgopt/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// Byte counts are printed both exact, with thousands separators, and in
// binary units.
type SimpleWriter struct {
	baseWriter

	// verbose lists failed files and files with sensitive metadata.
	verbose bool

	// printer formats numbers with thousands separators.
	printer *message.Printer

	// title capitalizes outcome labels.
	title cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with per-file details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithLanguage sets the language used for number formatting.
func WithLanguage(tag language.Tag) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.printer = message.NewPrinter(tag)
		w.title = cases.Title(tag)
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
		title:      cases.Title(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	for i := range report.Sites {
		w.writeSite(&sb, &report.Sites[i])
	}
	w.writeTotals(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          IMGOPT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(w.printer.Sprintf("Root:      %s\n", report.Options.Root))
	sb.WriteString(w.printer.Sprintf("Started:   %s\n", report.StartedAt.Format(timeLayout)))
	sb.WriteString(w.printer.Sprintf("Duration:  %s\n", formatDuration(report.Duration())))
	sb.WriteString(w.printer.Sprintf("Sites:     %d\n", len(report.Sites)))

	mode := "optimize"
	if report.Options.DryRun {
		mode = "dry-run (no file was modified)"
	}
	sb.WriteString(w.printer.Sprintf("Mode:      %s\n", mode))
	sb.WriteString("\n")
}

// writeSite writes the section of one site.
func (w *SimpleWriter) writeSite(sb *strings.Builder, s *model.SiteSummary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(w.printer.Sprintf("SITE %s [%s]\n", s.Name, siteStatus(s)))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(w.printer.Sprintf("  Root:       %s\n", s.SiteRoot))
	if s.Failed() {
		sb.WriteString(w.printer.Sprintf("  Error:      %s\n", s.Error))
	}
	w.writeCounters(sb, s)

	if s.BackupDisabled {
		sb.WriteString("  Backups:    disabled (backup directory could not be created)\n")
	}

	if w.verbose {
		w.writeFiles(sb, "failed", failedFiles(s))
		w.writeMetadata(sb, metadataFiles(s))
	}
	sb.WriteString("\n")
}

// writeCounters writes the size and file counters of a summary.
func (w *SimpleWriter) writeCounters(sb *strings.Builder, s *model.SiteSummary) {
	sb.WriteString(w.printer.Sprintf("  Before:     %d bytes (%s)\n", s.BytesBefore, humanize.IBytes(nonNegative(s.BytesBefore))))
	sb.WriteString(w.printer.Sprintf("  After:      %d bytes (%s)\n", s.BytesAfter, humanize.IBytes(nonNegative(s.BytesAfter))))
	sb.WriteString(w.printer.Sprintf("  Saved:      %d bytes (%.2f%%)\n", s.Saved(), s.SavedPercent()))
	sb.WriteString(w.printer.Sprintf("  Processed:  %d\n", s.FilesProcessed))
	sb.WriteString(w.printer.Sprintf("  Skipped:    %d\n", s.FilesSkipped))
	sb.WriteString(w.printer.Sprintf("  Failed:     %d\n", s.FilesFailed))
	if s.BackupFailures > 0 {
		sb.WriteString(w.printer.Sprintf("  No backup:  %d\n", s.BackupFailures))
	}
	if s.MarkerFailures > 0 {
		sb.WriteString(w.printer.Sprintf("  No marker:  %d\n", s.MarkerFailures))
	}
	if s.MetadataFiles > 0 {
		sb.WriteString(w.printer.Sprintf("  Metadata:   %d file(s) with sensitive EXIF tags\n", s.MetadataFiles))
	}
}

// writeFiles lists file results under a label.
func (w *SimpleWriter) writeFiles(sb *strings.Builder, label string, files []*model.FileResult) {
	if len(files) == 0 {
		return
	}
	sb.WriteString(w.printer.Sprintf("\n  %s files:\n", w.title.String(label)))
	for _, r := range files {
		sb.WriteString(w.printer.Sprintf("    * %s\n", r.File.Path))
		if r.Reason != "" {
			sb.WriteString(w.printer.Sprintf("      %s: %s\n", w.title.String(r.Outcome.String()), r.Reason))
		}
	}
}

// writeMetadata lists files with sensitive tags.
func (w *SimpleWriter) writeMetadata(sb *strings.Builder, files []*model.FileResult) {
	if len(files) == 0 {
		return
	}
	sb.WriteString("\n  Sensitive metadata (stripped):\n")
	for _, r := range files {
		names := make([]string, len(r.Metadata))
		for i, tag := range r.Metadata {
			names[i] = tag.Name
		}
		sb.WriteString(w.printer.Sprintf("    [%s] %s: %s\n",
			model.HighestSeverity(r.Metadata), r.File.Path, strings.Join(names, ", ")))
	}
}

// writeTotals writes the sum over all sites.
func (w *SimpleWriter) writeTotals(sb *strings.Builder, report *model.RunReport) {
	total := report.Totals()

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("TOTAL\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	w.writeCounters(sb, &total)
	if failed := report.FailedSites(); failed > 0 {
		sb.WriteString(w.printer.Sprintf("  Sites with errors: %d\n", failed))
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by imgopt\n")
	sb.WriteString("https://github.com/nao1215/imgopt\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// nonNegative clamps n for unsigned formatting.
func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
