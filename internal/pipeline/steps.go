package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/imgopt/internal/backup"
	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/marker"
	"github.com/nao1215/imgopt/internal/metadata"
	"github.com/nao1215/imgopt/internal/model"
)

// Optimizer optimizes a single image in place.
// *codec.Dispatcher implements it.
type Optimizer interface {
	Optimize(ctx context.Context, file model.ImageFile, lv codec.Levels) codec.Result
}

// MarkerStep skips files that carry an optimization marker.
type MarkerStep struct {
	store  marker.Store
	force  bool
	logger *slog.Logger
}

// NewMarkerStep creates a marker check step. With force set every file
// is treated as unmarked.
func NewMarkerStep(store marker.Store, force bool, logger *slog.Logger) *MarkerStep {
	return &MarkerStep{store: store, force: force, logger: orDefault(logger)}
}

// Name returns the step name.
func (s *MarkerStep) Name() string {
	return "marker"
}

// Do implements Step.
func (s *MarkerStep) Do(ctx context.Context, result *model.FileResult) error {
	if s.store.IsOptimized(ctx, result.File.Path, s.force) {
		result.Outcome = model.OutcomeSkipped
		s.logger.Debug("already optimized", "path", result.File.Path)
		return ErrStop
	}
	s.logger.Info("file", "path", result.File.Path, "size", FormatSize(result.File.Size))
	return nil
}

// DryRunStep reports files that would be optimized and stops.
type DryRunStep struct {
	logger *slog.Logger
}

// NewDryRunStep creates the dry-run gate.
func NewDryRunStep(logger *slog.Logger) *DryRunStep {
	return &DryRunStep{logger: orDefault(logger)}
}

// Name returns the step name.
func (s *DryRunStep) Name() string {
	return "dry-run"
}

// Do implements Step.
func (s *DryRunStep) Do(_ context.Context, result *model.FileResult) error {
	s.logger.Info("  (dry-run) would optimize", "path", result.File.Path)
	result.Outcome = model.OutcomeDryRun
	return ErrStop
}

// MetadataStep records privacy relevant EXIF tags before the optimizer
// strips them. Inspection failures are ignored.
type MetadataStep struct {
	inspector metadata.Inspector
	logger    *slog.Logger
}

// NewMetadataStep creates a metadata inspection step.
func NewMetadataStep(inspector metadata.Inspector, logger *slog.Logger) *MetadataStep {
	return &MetadataStep{inspector: inspector, logger: orDefault(logger)}
}

// Name returns the step name.
func (s *MetadataStep) Name() string {
	return "metadata"
}

// Do implements Step.
func (s *MetadataStep) Do(ctx context.Context, result *model.FileResult) error {
	if result.File.Format != model.FormatJPEG {
		return nil
	}

	tags, err := s.inspector.Inspect(ctx, result.File)
	if err != nil {
		s.logger.Debug("metadata inspection failed", "path", result.File.Path, "error", err)
		return nil
	}
	if len(tags) == 0 {
		return nil
	}

	result.Metadata = tags
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.Name
	}
	s.logger.Info("  sensitive metadata will be stripped",
		"path", result.File.Path,
		"severity", model.HighestSeverity(tags),
		"tags", names,
	)
	return nil
}

// BackupStep copies the file below the site's backup directory.
// A failed copy is a soft failure.
type BackupStep struct {
	manager *backup.Manager
	logger  *slog.Logger
}

// NewBackupStep creates a backup step.
func NewBackupStep(manager *backup.Manager, logger *slog.Logger) *BackupStep {
	return &BackupStep{manager: manager, logger: orDefault(logger)}
}

// Name returns the step name.
func (s *BackupStep) Name() string {
	return "backup"
}

// Do implements Step.
func (s *BackupStep) Do(_ context.Context, result *model.FileResult) error {
	dst, written, err := s.manager.Backup(result.File.Path)
	if err != nil {
		result.BackupError = err.Error()
		s.logger.Warn("  backup failed", "path", result.File.Path, "error", err)
		return nil
	}
	if !written {
		s.logger.Debug("backup exists, kept", "path", dst)
		return nil
	}
	s.logger.Debug("backup written", "path", dst)
	return nil
}

// OptimizeStep runs the external optimizer for the file.
type OptimizeStep struct {
	optimizer Optimizer
	levels    codec.Levels
	logger    *slog.Logger
}

// NewOptimizeStep creates an optimizer step using levels.
func NewOptimizeStep(optimizer Optimizer, levels codec.Levels, logger *slog.Logger) *OptimizeStep {
	return &OptimizeStep{optimizer: optimizer, levels: levels, logger: orDefault(logger)}
}

// Name returns the step name.
func (s *OptimizeStep) Name() string {
	return "optimize"
}

// Do implements Step.
func (s *OptimizeStep) Do(ctx context.Context, result *model.FileResult) error {
	res := s.optimizer.Optimize(ctx, result.File, s.levels)
	if !res.Success() {
		result.Fail(res.Err.Error())
		s.logger.Warn("  optimization failed", "path", result.File.Path, "error", res.Err)
		return fmt.Errorf("optimize %s: %w", result.File.Path, res.Err)
	}

	if info, err := os.Stat(result.File.Path); err == nil {
		s.logger.Debug("optimized",
			"path", result.File.Path,
			"tool", res.Tool,
			"before", result.File.Size,
			"after", info.Size(),
			"duration", res.Duration,
		)
	}
	return nil
}

// MarkStep writes the optimization marker and settles the outcome.
// A failed marker write is a soft failure.
type MarkStep struct {
	store  marker.Store
	logger *slog.Logger
}

// NewMarkStep creates a marker write step.
func NewMarkStep(store marker.Store, logger *slog.Logger) *MarkStep {
	return &MarkStep{store: store, logger: orDefault(logger)}
}

// Name returns the step name.
func (s *MarkStep) Name() string {
	return "mark"
}

// Do implements Step.
func (s *MarkStep) Do(ctx context.Context, result *model.FileResult) error {
	result.Outcome = model.OutcomeOptimized
	if err := s.store.MarkOptimized(ctx, result.File.Path); err != nil {
		result.MarkerError = err.Error()
		s.logger.Warn("  failed to write optimization marker", "path", result.File.Path, "error", err)
	}
	return nil
}

// orDefault returns logger, or the default logger when it is nil.
func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
