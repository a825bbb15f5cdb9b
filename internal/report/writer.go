package report

import (
	"io"
	"time"

	"github.com/nao1215/imgopt/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.RunReport) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// timeLayout is used for every timestamp in human-readable reports.
const timeLayout = "2006-01-02 15:04:05 MST"

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// siteStatus returns a short status word for a site.
func siteStatus(s *model.SiteSummary) string {
	switch {
	case s.Failed():
		return "error"
	case s.FilesFailed > 0:
		return "partial"
	case s.DryRun:
		return "dry-run"
	default:
		return "ok"
	}
}

// failedFiles returns the failed results of a site.
func failedFiles(s *model.SiteSummary) []*model.FileResult {
	var failed []*model.FileResult
	for _, r := range s.Results {
		if r.Outcome == model.OutcomeFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// metadataFiles returns the results that carried sensitive metadata.
func metadataFiles(s *model.SiteSummary) []*model.FileResult {
	var found []*model.FileResult
	for _, r := range s.Results {
		if len(r.Metadata) > 0 {
			found = append(found, r)
		}
	}
	return found
}
