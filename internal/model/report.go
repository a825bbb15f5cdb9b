package model

import "time"

// RunOptions is the snapshot of options a run was started with.
// It is stored in reports and history so runs can be compared later.
type RunOptions struct {
	Root         string   `json:"root"`
	Backup       bool     `json:"backup"`
	BackupPolicy string   `json:"backup_policy"`
	Force        bool     `json:"force"`
	DryRun       bool     `json:"dry_run"`
	Exclude      []string `json:"exclude"`
	JPEGQuality  int      `json:"jpeg_quality"`
	PNGLevel     int      `json:"png_level"`
	GIFLevel     int      `json:"gif_level"`
	Workers      int      `json:"workers"`
	Marker       string   `json:"marker"`
}

// RunReport aggregates all sites of a single invocation.
type RunReport struct {
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last site finished.
	FinishedAt time.Time `json:"finished_at"`

	// Options is the run configuration.
	Options RunOptions `json:"options"`

	// Sites holds one summary per processed site in discovery order.
	Sites []SiteSummary `json:"sites"`
}

// NewRunReport creates an empty report stamped with the current time.
func NewRunReport(opts RunOptions) *RunReport {
	return &RunReport{
		StartedAt: time.Now(),
		Options:   opts,
		Sites:     make([]SiteSummary, 0),
	}
}

// Finish records the end time and the site summaries.
func (r *RunReport) Finish(sites []SiteSummary) {
	r.Sites = sites
	r.FinishedAt = time.Now()
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Totals returns a synthetic summary that sums all sites.
// Per-file results are not copied.
func (r *RunReport) Totals() SiteSummary {
	total := SiteSummary{
		SiteRoot:  r.Options.Root,
		Name:      "total",
		DryRun:    r.Options.DryRun,
		StartedAt: r.StartedAt,
		Duration:  r.Duration(),
	}
	for i := range r.Sites {
		s := &r.Sites[i]
		total.BytesBefore += s.BytesBefore
		total.BytesAfter += s.BytesAfter
		total.FilesProcessed += s.FilesProcessed
		total.FilesSkipped += s.FilesSkipped
		total.FilesFailed += s.FilesFailed
		total.BackupFailures += s.BackupFailures
		total.MarkerFailures += s.MarkerFailures
		total.MetadataFiles += s.MetadataFiles
	}
	return total
}

// FailedSites returns the number of sites that ended with a fatal error.
func (r *RunReport) FailedSites() int {
	n := 0
	for i := range r.Sites {
		if r.Sites[i].Failed() {
			n++
		}
	}
	return n
}
