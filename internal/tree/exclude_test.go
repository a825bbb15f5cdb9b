package tree

import (
	"reflect"
	"testing"
)

// TestNewExclusions tests the default exclusion set and deduplication.
func TestNewExclusions(t *testing.T) {
	t.Parallel()

	t.Run("always contains backup", func(t *testing.T) {
		t.Parallel()
		e := NewExclusions()
		if !e.Contains(BackupDirName) {
			t.Error("expected backup to be excluded by default")
		}
		if len(e) != 1 {
			t.Errorf("expected 1 name, got %d", len(e))
		}
	})

	t.Run("merges and deduplicates user names", func(t *testing.T) {
		t.Parallel()
		e := NewExclusions("cache", "tmp", "cache", "backup", "")
		want := []string{"backup", "cache", "tmp"}
		if got := e.Names(); !reflect.DeepEqual(got, want) {
			t.Errorf("Names() = %v, expected %v", got, want)
		}
	})

	t.Run("matching is exact", func(t *testing.T) {
		t.Parallel()
		e := NewExclusions("cache")
		if e.Contains("Cache") || e.Contains("cache2") {
			t.Error("expected exact segment matching")
		}
	})
}

// TestExclusionsWith tests that With copies instead of mutating.
func TestExclusionsWith(t *testing.T) {
	t.Parallel()

	base := NewExclusions("cache")
	extended := base.With("thumbs")

	if !extended.Contains("thumbs") || !extended.Contains("cache") || !extended.Contains("backup") {
		t.Errorf("unexpected extended set: %v", extended.Names())
	}
	if base.Contains("thumbs") {
		t.Error("With must not mutate the receiver")
	}
}
