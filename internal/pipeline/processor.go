package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/imgopt/internal/backup"
	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/marker"
	"github.com/nao1215/imgopt/internal/metadata"
	"github.com/nao1215/imgopt/internal/model"
	"github.com/nao1215/imgopt/internal/tree"
)

// Options configures the processing of one site.
type Options struct {
	// Backup enables the backup copy before mutation.
	Backup bool

	// BackupPolicy decides what happens to an existing backup copy.
	BackupPolicy backup.Policy

	// Force ignores existing optimization markers.
	Force bool

	// DryRun reports what would be optimized without touching any file.
	DryRun bool

	// Exclude is the set of directory names pruned at any depth.
	// A nil set means only the backup directory is excluded.
	Exclude tree.Exclusions

	// Levels are the optimizer settings.
	Levels codec.Levels

	// Workers is the number of files optimized concurrently.
	Workers int
}

// Processor optimizes all images below a single site root.
type Processor struct {
	optimizer Optimizer
	markers   marker.Store
	inspector metadata.Inspector
	logger    *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMarkerStore replaces the sidecar marker store.
func WithMarkerStore(store marker.Store) ProcessorOption {
	return func(p *Processor) {
		if store != nil {
			p.markers = store
		}
	}
}

// WithInspector enables metadata inspection of JPEG files.
func WithInspector(inspector metadata.Inspector) ProcessorOption {
	return func(p *Processor) {
		p.inspector = inspector
	}
}

// NewProcessor creates a Processor that optimizes files with optimizer.
func NewProcessor(optimizer Optimizer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		optimizer: optimizer,
		markers:   marker.NewSidecarStore(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Process optimizes the images of the site at dir.
//
// The site root is dir, or its "www" subdirectory when present. The total
// image size is measured before the walk and again after every file
// finished. The returned summary is filled even when an error is returned;
// the error reports a site that could not be walked.
func (p *Processor) Process(ctx context.Context, dir string, opts Options) (model.SiteSummary, error) {
	siteRoot := tree.SiteRoot(dir)
	if abs, err := filepath.Abs(siteRoot); err == nil {
		siteRoot = abs
	}
	summary := model.SiteSummary{
		SiteRoot:  siteRoot,
		Name:      filepath.Base(dir),
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}

	info, err := os.Stat(siteRoot)
	if err != nil {
		return summary, fmt.Errorf("failed to open site root %s: %w", siteRoot, err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("site root %s is not a directory", siteRoot)
	}

	excl := opts.Exclude
	if excl == nil {
		excl = tree.NewExclusions()
	}

	p.logger.Info("processing", "root", siteRoot)
	summary.BytesBefore = tree.TotalSize(siteRoot, excl)
	p.logger.Info("size before", "root", siteRoot, "size", FormatSize(summary.BytesBefore))

	var manager *backup.Manager
	if opts.Backup && !opts.DryRun {
		manager = backup.NewManager(siteRoot, filepath.Join(siteRoot, tree.BackupDirName), opts.BackupPolicy)
		if err := manager.Ensure(); err != nil {
			p.logger.Error("failed to create backup directory, backups disabled for this site",
				"dir", manager.Root(),
				"error", err,
			)
			manager = nil
			summary.BackupDisabled = true
		}
	}

	pl := p.newPipeline(opts, manager)
	p.logger.Debug("pipeline configured", "root", siteRoot, "steps", pl.StepNames())

	bp := NewBatchProcessor(
		pl,
		WithConcurrency(opts.Workers),
		WithInline(opts.DryRun),
		WithBatchLogger(p.logger),
	)
	results, walkErr := bp.Process(ctx, siteRoot, func(fn tree.WalkFunc) error {
		return tree.Walk(siteRoot, excl, fn)
	})

	for _, r := range results {
		summary.Add(r)
	}

	summary.BytesAfter = tree.TotalSize(siteRoot, excl)
	summary.Duration = time.Since(summary.StartedAt)

	p.logger.Info("result",
		"root", siteRoot,
		"before", FormatSize(summary.BytesBefore),
		"after", FormatSize(summary.BytesAfter),
		"saved", FormatSize(summary.Saved()),
		"percent", fmt.Sprintf("%.2f%%", summary.SavedPercent()),
		"processed", summary.FilesProcessed,
		"skipped", summary.FilesSkipped,
		"failed", summary.FilesFailed,
	)

	if walkErr != nil {
		return summary, fmt.Errorf("failed to walk %s: %w", siteRoot, walkErr)
	}
	return summary, nil
}

// newPipeline assembles the per-file steps for one site.
func (p *Processor) newPipeline(opts Options, manager *backup.Manager) *Pipeline {
	pl := New(WithLogger(p.logger))
	pl.AddStep(NewMarkerStep(p.markers, opts.Force, p.logger))

	if opts.DryRun {
		pl.AddStep(NewDryRunStep(p.logger))
		return pl
	}

	if p.inspector != nil {
		pl.AddStep(NewMetadataStep(p.inspector, p.logger))
	}
	if manager != nil {
		pl.AddStep(NewBackupStep(manager, p.logger))
	}
	pl.AddSteps(
		NewOptimizeStep(p.optimizer, opts.Levels, p.logger),
		NewMarkStep(p.markers, p.logger),
	)
	return pl
}

// FormatSize renders a byte count with binary units. Negative values
// (files that grew) keep their sign.
func FormatSize(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
