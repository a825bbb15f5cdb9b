package marker

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Suffix is appended to an image path to form its sidecar marker path.
const Suffix = ".optimized"

// Store answers whether an image was already optimized and records that it
// now has been.
type Store interface {
	// IsOptimized reports whether path carries a marker. It returns false
	// unconditionally when force is set.
	IsOptimized(ctx context.Context, path string, force bool) bool

	// MarkOptimized records that path was optimized. A returned error is a
	// soft failure: the image is simply eligible again on the next run.
	MarkOptimized(ctx context.Context, path string) error
}

// Path returns the sidecar marker path for an image.
// It is the only place the marker naming scheme is defined.
func Path(imagePath string) string {
	return imagePath + Suffix
}

// SidecarStore keeps markers as files next to the images.
type SidecarStore struct {
	// now returns the timestamp written into markers.
	now func() time.Time
}

// SidecarOption configures a SidecarStore.
type SidecarOption func(*SidecarStore)

// WithClock overrides the clock used for marker timestamps.
func WithClock(now func() time.Time) SidecarOption {
	return func(s *SidecarStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSidecarStore creates a SidecarStore.
func NewSidecarStore(opts ...SidecarOption) *SidecarStore {
	s := &SidecarStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsOptimized implements Store.
func (s *SidecarStore) IsOptimized(_ context.Context, path string, force bool) bool {
	if force {
		return false
	}
	_, err := os.Stat(Path(path))
	return err == nil
}

// MarkOptimized implements Store. The marker content is an RFC 3339
// timestamp and is informational only. An existing marker is rewritten.
func (s *SidecarStore) MarkOptimized(_ context.Context, path string) error {
	stamp := s.now().Format(time.RFC3339Nano)
	if err := os.WriteFile(Path(path), []byte(stamp), 0644); err != nil { //nolint:gosec // markers sit next to world-readable web assets
		return fmt.Errorf("failed to write marker for %s: %w", path, err)
	}
	return nil
}
