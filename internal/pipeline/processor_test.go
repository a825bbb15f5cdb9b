package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/imgopt/internal/backup"
	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/marker"
	"github.com/nao1215/imgopt/internal/model"
	"github.com/nao1215/imgopt/internal/tree"
)

// fakeOptimizer stands in for the external tools: it halves every file it
// is given, or fails for the configured base names.
type fakeOptimizer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeOptimizer) run(_ context.Context, name string, args []string, out io.Writer) error {
	path := args[len(args)-1]
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()

	if f.fail[filepath.Base(path)] {
		_, _ = fmt.Fprintln(out, "corrupt image") //nolint:errcheck // test output
		return &codec.ExitError{Tool: name, Code: 1}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data[:len(data)/2], 0600)
}

func (f *fakeOptimizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeOptimizer) dispatcher() *codec.Dispatcher {
	return codec.NewDispatcher(
		codec.WithRunner(codec.RunnerFunc(f.run)),
		codec.WithOutput(io.Discard),
		codec.WithLogger(discardLogger()),
	)
}

// countingStore counts marker writes of the wrapped store.
type countingStore struct {
	marker.Store
	writes atomic.Int32
	err    error
}

func (s *countingStore) MarkOptimized(ctx context.Context, path string) error {
	s.writes.Add(1)
	if s.err != nil {
		return s.err
	}
	return s.Store.MarkOptimized(ctx, path)
}

// fakeInspector reports a GPS tag for every JPEG.
type fakeInspector struct {
	err error
}

func (f fakeInspector) Inspect(_ context.Context, _ model.ImageFile) ([]model.MetadataTag, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.MetadataTag{{Name: "GPSLatitude", Value: "35", Severity: model.SeverityCritical}}, nil
}

// writeImage writes size bytes of non-uniform content to path.
func writeImage(t *testing.T, path string, size int) []byte {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return data
}

// readFile reads path or fails the test.
func readFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

// exists reports whether path exists.
func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// newSite creates a site with three images and two excluded copies.
//
//	root/a.jpg           1000
//	root/img/b.png       2000
//	root/img/c.GIF        400
//	root/cache/d.png      800   (excluded by caller)
//	root/img/backup/e.png 300   (always excluded)
func newSite(t *testing.T) (string, map[string][]byte) {
	t.Helper()

	root := t.TempDir()
	originals := map[string][]byte{
		"a.jpg":     writeImage(t, filepath.Join(root, "a.jpg"), 1000),
		"img/b.png": writeImage(t, filepath.Join(root, "img", "b.png"), 2000),
		"img/c.GIF": writeImage(t, filepath.Join(root, "img", "c.GIF"), 400),
	}
	writeImage(t, filepath.Join(root, "cache", "d.png"), 800)
	writeImage(t, filepath.Join(root, "img", "backup", "e.png"), 300)
	return root, originals
}

func defaultOptions() Options {
	return Options{
		Backup:  true,
		Exclude: tree.NewExclusions("cache"),
		Levels:  codec.DefaultLevels(),
		Workers: 1,
	}
}

func TestProcessorProcess(t *testing.T) {
	t.Parallel()

	t.Run("optimizes, backs up and marks every file", func(t *testing.T) {
		t.Parallel()

		root, originals := newSite(t)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if summary.BytesBefore != 3400 {
			t.Errorf("BytesBefore = %d, want 3400", summary.BytesBefore)
		}
		if summary.BytesAfter != 1700 {
			t.Errorf("BytesAfter = %d, want 1700", summary.BytesAfter)
		}
		if summary.FilesProcessed != 3 || summary.FilesFailed != 0 || summary.FilesSkipped != 0 {
			t.Errorf("unexpected counters %+v", summary)
		}
		if fake.callCount() != 3 {
			t.Errorf("expected 3 optimizer calls, got %d", fake.callCount())
		}

		for rel, original := range originals {
			path := filepath.Join(root, filepath.FromSlash(rel))
			backupPath := filepath.Join(root, tree.BackupDirName, filepath.FromSlash(rel))
			if !bytes.Equal(readFile(t, backupPath), original) {
				t.Errorf("backup of %s does not match the original", rel)
			}
			if !exists(marker.Path(path)) {
				t.Errorf("expected marker for %s", rel)
			}
		}
	})

	t.Run("excluded files are never touched", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		if _, err := p.Process(context.Background(), root, defaultOptions()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, rel := range []string{"cache/d.png", "img/backup/e.png"} {
			path := filepath.Join(root, filepath.FromSlash(rel))
			if exists(marker.Path(path)) {
				t.Errorf("excluded %s was marked", rel)
			}
			if len(readFile(t, path)) == 0 {
				t.Errorf("excluded %s was modified", rel)
			}
		}
		if exists(filepath.Join(root, tree.BackupDirName, "cache")) {
			t.Error("excluded directory was backed up")
		}
		for _, call := range fake.calls {
			if filepath.Base(call) == "d.png" || filepath.Base(call) == "e.png" {
				t.Errorf("excluded file %s was optimized", call)
			}
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		store := &countingStore{Store: marker.NewSidecarStore()}
		p := NewProcessor(fake.dispatcher(),
			WithProcessorLogger(discardLogger()),
			WithMarkerStore(store),
		)

		if _, err := p.Process(context.Background(), root, defaultOptions()); err != nil {
			t.Fatalf("first run: %v", err)
		}
		calls, writes := fake.callCount(), store.writes.Load()

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if fake.callCount() != calls {
			t.Errorf("second run invoked the optimizer %d times", fake.callCount()-calls)
		}
		if store.writes.Load() != writes {
			t.Errorf("second run wrote %d markers", store.writes.Load()-writes)
		}
		if summary.FilesSkipped != 3 || summary.FilesProcessed != 0 {
			t.Errorf("unexpected counters %+v", summary)
		}
		if summary.Saved() != 0 {
			t.Errorf("expected nothing saved, got %d", summary.Saved())
		}
	})

	t.Run("force reprocesses and rewrites markers", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		second := first.Add(24 * time.Hour)

		p1 := NewProcessor(fake.dispatcher(),
			WithProcessorLogger(discardLogger()),
			WithMarkerStore(marker.NewSidecarStore(marker.WithClock(func() time.Time { return first }))),
		)
		if _, err := p1.Process(context.Background(), root, defaultOptions()); err != nil {
			t.Fatalf("first run: %v", err)
		}

		p2 := NewProcessor(fake.dispatcher(),
			WithProcessorLogger(discardLogger()),
			WithMarkerStore(marker.NewSidecarStore(marker.WithClock(func() time.Time { return second }))),
		)
		opts := defaultOptions()
		opts.Force = true
		summary, err := p2.Process(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("forced run: %v", err)
		}
		if fake.callCount() != 6 {
			t.Errorf("expected 6 optimizer calls, got %d", fake.callCount())
		}
		if summary.FilesProcessed != 3 {
			t.Errorf("FilesProcessed = %d, want 3", summary.FilesProcessed)
		}
		stamp := readFile(t, marker.Path(filepath.Join(root, "a.jpg")))
		got, err := time.Parse(time.RFC3339Nano, string(stamp))
		if err != nil {
			t.Fatalf("invalid marker timestamp %q: %v", stamp, err)
		}
		if !got.Equal(second) {
			t.Errorf("marker timestamp = %v, want %v", got, second)
		}
	})

	t.Run("dry run changes nothing", func(t *testing.T) {
		t.Parallel()

		root, originals := newSite(t)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		opts := defaultOptions()
		opts.DryRun = true
		summary, err := p.Process(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if fake.callCount() != 0 {
			t.Errorf("dry run invoked the optimizer %d times", fake.callCount())
		}
		if exists(filepath.Join(root, tree.BackupDirName)) {
			t.Error("dry run created a backup directory")
		}
		for rel, original := range originals {
			path := filepath.Join(root, filepath.FromSlash(rel))
			if exists(marker.Path(path)) {
				t.Errorf("dry run marked %s", rel)
			}
			if !bytes.Equal(readFile(t, path), original) {
				t.Errorf("dry run modified %s", rel)
			}
		}
		if summary.FilesProcessed != 3 {
			t.Errorf("FilesProcessed = %d, want the 3 files a real run processes", summary.FilesProcessed)
		}
		if summary.BytesBefore != summary.BytesAfter {
			t.Errorf("dry run changed sizes: %d -> %d", summary.BytesBefore, summary.BytesAfter)
		}
		for _, r := range summary.Results {
			if r.Outcome != model.OutcomeDryRun {
				t.Errorf("%s outcome = %v, want dry-run", r.File.Path, r.Outcome)
			}
		}
	})

	t.Run("failed file is left unmarked and retried", func(t *testing.T) {
		t.Parallel()

		root, originals := newSite(t)
		fake := &fakeOptimizer{fail: map[string]bool{"b.png": true}}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))
		failed := filepath.Join(root, "img", "b.png")
		backupPath := filepath.Join(root, tree.BackupDirName, "img", "b.png")

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.FilesFailed != 1 || summary.FilesProcessed != 2 {
			t.Errorf("unexpected counters %+v", summary)
		}
		if exists(marker.Path(failed)) {
			t.Error("failed file was marked")
		}
		if !bytes.Equal(readFile(t, backupPath), originals["img/b.png"]) {
			t.Error("backup of failed file does not match source")
		}

		// Corrupt the stale backup; the retry overwrites it with the
		// unchanged source.
		if err := os.WriteFile(backupPath, []byte("stale"), 0600); err != nil {
			t.Fatal(err)
		}
		before := fake.callCount()
		if _, err := p.Process(context.Background(), root, defaultOptions()); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if fake.callCount() != before+1 {
			t.Errorf("expected only the failed file to be retried, got %d calls", fake.callCount()-before)
		}
		if !bytes.Equal(readFile(t, backupPath), originals["img/b.png"]) {
			t.Error("retry did not overwrite the backup with the source")
		}
	})

	t.Run("keep-first policy preserves the first backup", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))
		backupPath := filepath.Join(root, tree.BackupDirName, "a.jpg")
		writeImage(t, backupPath, 10)
		first := readFile(t, backupPath)

		opts := defaultOptions()
		opts.BackupPolicy = backup.PolicyKeepFirst
		if _, err := p.Process(context.Background(), root, opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(readFile(t, backupPath), first) {
			t.Error("keep-first overwrote an existing backup")
		}
	})

	t.Run("backups disabled when the backup directory cannot be created", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		if err := os.WriteFile(filepath.Join(root, tree.BackupDirName), []byte("not a dir"), 0600); err != nil {
			t.Fatal(err)
		}
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !summary.BackupDisabled {
			t.Error("expected BackupDisabled")
		}
		if summary.FilesProcessed != 3 {
			t.Errorf("FilesProcessed = %d, want 3", summary.FilesProcessed)
		}
		if summary.BackupFailures != 0 {
			t.Errorf("BackupFailures = %d, want 0", summary.BackupFailures)
		}
	})

	t.Run("backup failure does not prevent optimization", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		blocker := filepath.Join(root, tree.BackupDirName, "img")
		writeImage(t, blocker, 1)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.BackupFailures != 2 {
			t.Errorf("BackupFailures = %d, want 2", summary.BackupFailures)
		}
		if summary.FilesProcessed != 3 {
			t.Errorf("FilesProcessed = %d, want 3", summary.FilesProcessed)
		}
	})

	t.Run("marker failure is soft", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		store := &countingStore{Store: marker.NewSidecarStore(), err: errors.New("read-only")}
		p := NewProcessor(fake.dispatcher(),
			WithProcessorLogger(discardLogger()),
			WithMarkerStore(store),
		)

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.MarkerFailures != 3 || summary.FilesProcessed != 3 {
			t.Errorf("unexpected counters %+v", summary)
		}
	})

	t.Run("metadata is recorded for JPEG files", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(),
			WithProcessorLogger(discardLogger()),
			WithInspector(fakeInspector{}),
		)

		summary, err := p.Process(context.Background(), root, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.MetadataFiles != 1 {
			t.Errorf("MetadataFiles = %d, want 1", summary.MetadataFiles)
		}
	})

	t.Run("workers produce the same ordered results", func(t *testing.T) {
		t.Parallel()

		root, _ := newSite(t)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		opts := defaultOptions()
		opts.Workers = 4
		summary, err := p.Process(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a.jpg", "b.png", "c.GIF"}
		if len(summary.Results) != len(want) {
			t.Fatalf("expected %d results, got %d", len(want), len(summary.Results))
		}
		for i, r := range summary.Results {
			if filepath.Base(r.File.Path) != want[i] {
				t.Errorf("result[%d] = %s, want %s", i, r.File.Path, want[i])
			}
		}
		if summary.BytesAfter != 1700 {
			t.Errorf("BytesAfter = %d, want 1700", summary.BytesAfter)
		}
	})

	t.Run("uses the www subdirectory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeImage(t, filepath.Join(dir, "top.png"), 100)
		writeImage(t, filepath.Join(dir, tree.WWWDirName, "inner.png"), 100)
		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		summary, err := p.Process(context.Background(), dir, defaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.SiteRoot != filepath.Join(dir, tree.WWWDirName) {
			t.Errorf("SiteRoot = %q", summary.SiteRoot)
		}
		if summary.Name != filepath.Base(dir) {
			t.Errorf("Name = %q", summary.Name)
		}
		if fake.callCount() != 1 {
			t.Errorf("expected only the www image to be optimized, got %d calls", fake.callCount())
		}
	})

	t.Run("missing site root is an error", func(t *testing.T) {
		t.Parallel()

		fake := &fakeOptimizer{}
		p := NewProcessor(fake.dispatcher(), WithProcessorLogger(discardLogger()))

		_, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "gone"), defaultOptions())
		if err == nil {
			t.Error("expected error for missing site root")
		}
	})
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{in: 0, want: "0 B"},
		{in: 2048, want: "2.0 KiB"},
		{in: -2048, want: "-2.0 KiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := FormatSize(tt.in); got != tt.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
