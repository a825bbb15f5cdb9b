package model

import "time"

// SiteSummary is the before/after accounting for one site root.
// It is built by the directory processor and aggregated by discovery.
type SiteSummary struct {
	// SiteRoot is the effective directory that was processed
	// (the "www" subfolder when one exists).
	SiteRoot string `json:"site_root"`

	// Name is the site directory name used for per-site configuration.
	Name string `json:"name"`

	// BytesBefore is the qualifying image size before the walk.
	BytesBefore int64 `json:"bytes_before"`

	// BytesAfter is the qualifying image size after all files finished.
	BytesAfter int64 `json:"bytes_after"`

	// FilesProcessed counts optimized files, plus dry-run files in dry-run mode.
	FilesProcessed int `json:"files_processed"`

	// FilesSkipped counts files that already carried a marker.
	FilesSkipped int `json:"files_skipped"`

	// FilesFailed counts files whose codec invocation failed.
	FilesFailed int `json:"files_failed"`

	// BackupFailures counts files that were processed without a backup copy.
	BackupFailures int `json:"backup_failures"`

	// MarkerFailures counts optimized files whose marker could not be written.
	MarkerFailures int `json:"marker_failures"`

	// MetadataFiles counts JPEGs that carried privacy relevant EXIF tags.
	MetadataFiles int `json:"metadata_files"`

	// BackupDisabled is true when the backup directory could not be created.
	BackupDisabled bool `json:"backup_disabled,omitempty"`

	// DryRun is true when no file was modified.
	DryRun bool `json:"dry_run"`

	// StartedAt is when processing of the site began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall time spent on the site.
	Duration time.Duration `json:"duration"`

	// Error holds the message of a per-site fatal error.
	Error string `json:"error,omitempty"`

	// Results holds the per-file results in discovery order.
	Results []*FileResult `json:"results,omitempty"`
}

// Saved returns the number of bytes saved. It is negative when files grew.
func (s *SiteSummary) Saved() int64 {
	return s.BytesBefore - s.BytesAfter
}

// SavedPercent returns the saved bytes as a percentage of BytesBefore.
// It returns 0 when BytesBefore is 0.
func (s *SiteSummary) SavedPercent() float64 {
	if s.BytesBefore <= 0 {
		return 0
	}
	return float64(s.Saved()) / float64(s.BytesBefore) * 100
}

// Failed reports whether the site ended with a per-site fatal error.
func (s *SiteSummary) Failed() bool {
	return s.Error != ""
}

// Add folds a file result into the counters.
func (s *SiteSummary) Add(r *FileResult) {
	switch r.Outcome {
	case OutcomeOptimized, OutcomeDryRun:
		s.FilesProcessed++
	case OutcomeSkipped:
		s.FilesSkipped++
	case OutcomeFailed:
		s.FilesFailed++
	case OutcomePending:
	}
	if r.BackupError != "" {
		s.BackupFailures++
	}
	if r.MarkerError != "" {
		s.MarkerFailures++
	}
	if len(r.Metadata) > 0 {
		s.MetadataFiles++
	}
	s.Results = append(s.Results, r)
}
