package model

import "time"

// Outcome is the terminal state of one image in a run.
type Outcome int

const (
	// OutcomePending means the file has not finished its pipeline yet.
	OutcomePending Outcome = iota

	// OutcomeOptimized means the codec succeeded.
	OutcomeOptimized

	// OutcomeSkipped means a marker was present and force was not set.
	OutcomeSkipped

	// OutcomeDryRun means the file would have been optimized.
	OutcomeDryRun

	// OutcomeFailed means the codec failed or could not be started.
	OutcomeFailed
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeOptimized:
		return "optimized"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDryRun:
		return "dry-run"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Processed reports whether the outcome counts toward "files processed".
// A dry-run file counts the same as a file that was actually optimized.
func (o Outcome) Processed() bool {
	return o == OutcomeOptimized || o == OutcomeDryRun
}

// FileResult records what happened to a single image.
// Soft failures that do not change the outcome (backup, marker) are kept
// as separate fields so the summary can count them.
type FileResult struct {
	// File is the image this result belongs to.
	File ImageFile `json:"file"`

	// SiteRoot is the site the file was processed under.
	SiteRoot string `json:"site_root"`

	// Outcome is the terminal state.
	Outcome Outcome `json:"outcome"`

	// Reason explains a failed outcome.
	Reason string `json:"reason,omitempty"`

	// BackupError is set when the backup copy could not be written.
	BackupError string `json:"backup_error,omitempty"`

	// MarkerError is set when the marker could not be written.
	MarkerError string `json:"marker_error,omitempty"`

	// Metadata lists privacy relevant tags found before optimization.
	Metadata []MetadataTag `json:"metadata,omitempty"`

	// Duration is the wall time spent on the file.
	Duration time.Duration `json:"duration"`
}

// NewFileResult creates a pending result for file under siteRoot.
func NewFileResult(file ImageFile, siteRoot string) *FileResult {
	return &FileResult{
		File:     file,
		SiteRoot: siteRoot,
		Outcome:  OutcomePending,
	}
}

// Fail marks the result as failed with the given reason.
func (r *FileResult) Fail(reason string) {
	r.Outcome = OutcomeFailed
	r.Reason = reason
}
