package marker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Index is the persistence used by IndexStore.
// The history database implements it.
type Index interface {
	// HasMarker reports whether path has a recorded marker.
	HasMarker(ctx context.Context, path string) (bool, error)

	// PutMarker records or refreshes the marker for path.
	PutMarker(ctx context.Context, path string, at time.Time) error
}

// IndexStore keeps markers in an Index instead of sidecar files.
type IndexStore struct {
	index  Index
	logger *slog.Logger
	now    func() time.Time
}

// NewIndexStore creates an IndexStore backed by index.
// If logger is nil, slog.Default() is used.
func NewIndexStore(index Index, logger *slog.Logger) *IndexStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexStore{index: index, logger: logger, now: time.Now}
}

// IsOptimized implements Store. A lookup error is logged and treated as
// "not optimized" so the image is processed rather than silently skipped.
func (s *IndexStore) IsOptimized(ctx context.Context, path string, force bool) bool {
	if force {
		return false
	}
	ok, err := s.index.HasMarker(ctx, path)
	if err != nil {
		s.logger.Warn("marker lookup failed", "path", path, "error", err)
		return false
	}
	return ok
}

// MarkOptimized implements Store.
func (s *IndexStore) MarkOptimized(ctx context.Context, path string) error {
	if err := s.index.PutMarker(ctx, path, s.now()); err != nil {
		return fmt.Errorf("failed to record marker for %s: %w", path, err)
	}
	return nil
}
