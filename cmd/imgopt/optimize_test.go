package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/config"
	"github.com/nao1215/imgopt/internal/database"
	"github.com/nao1215/imgopt/internal/marker"
)

// TestNewOptimizeCmd tests the optimize command flags.
func TestNewOptimizeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewOptimizeCmd()

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "root", shorthand: "r", defValue: "/var/www"},
		{name: "exclude", shorthand: "e", defValue: "[]"},
		{name: "no-backup", defValue: "false"},
		{name: "backup-policy", defValue: "overwrite"},
		{name: "force", defValue: "false"},
		{name: "dry-run", defValue: "false"},
		{name: "marker", defValue: "sidecar"},
		{name: "jpeg-quality", defValue: "90"},
		{name: "png-level", defValue: "2"},
		{name: "gif-level", defValue: "3"},
		{name: "workers", shorthand: "w", defValue: "1"},
		{name: "tool-timeout", defValue: "5m0s"},
		{name: "config", shorthand: "c", defValue: ""},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "output", shorthand: "o", defValue: ""},
		{name: "no-history", defValue: "false"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tc.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tc.name)
			}
			if flag.Shorthand != tc.shorthand {
				t.Errorf("expected shorthand %q, got %q", tc.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tc.defValue {
				t.Errorf("expected default %q, got %q", tc.defValue, flag.DefValue)
			}
		})
	}

	t.Run("log defaults to the state directory", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("log")
		if flag == nil || flag.DefValue != config.DefaultLogPath() {
			t.Errorf("expected log default %q", config.DefaultLogPath())
		}
	})
}

// parseOptimizeFlags builds the configuration of an optimize command line.
// An empty configuration file isolates the test from files on the machine.
func parseOptimizeFlags(t *testing.T, configContent string, args ...string) (*config.Config, error) {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), ".imgopt")
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatal(err)
	}

	cmd := NewOptimizeCmd()
	if err := cmd.Flags().Parse(append([]string{"-c", configPath}, args...)); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return buildConfig(cmd)
}

// TestBuildConfig tests flag and configuration file merging.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseOptimizeFlags(t, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Root != "/var/www" || !cfg.Backup || cfg.Force || cfg.DryRun || !cfg.SaveHistory {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if cfg.Levels != codec.DefaultLevels() {
			t.Errorf("expected default levels, got %+v", cfg.Levels)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})

	t.Run("flags", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseOptimizeFlags(t, "",
			"-r", "/data", "--no-backup", "--force", "--dry-run",
			"-e", "cache", "-e", "tmp", "--jpeg-quality", "80", "--png-level", "0",
			"--gif-level", "1", "-w", "4", "--tool-timeout", "30s",
			"--marker", "index", "--backup-policy", "keep-first", "--no-history", "-j",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Root != "/data" || cfg.Backup || !cfg.Force || !cfg.DryRun || cfg.SaveHistory || !cfg.JSONReport {
			t.Errorf("unexpected switches: %+v", cfg)
		}
		if len(cfg.Exclude) != 2 || cfg.Exclude[0] != "cache" || cfg.Exclude[1] != "tmp" {
			t.Errorf("expected excludes [cache tmp], got %v", cfg.Exclude)
		}
		want := codec.Levels{JPEGQuality: 80, PNGLevel: 0, GIFLevel: 1}
		if cfg.Levels != want {
			t.Errorf("expected %+v, got %+v", want, cfg.Levels)
		}
		if cfg.Workers != 4 || cfg.ToolTimeout != 30*time.Second {
			t.Errorf("unexpected workers/timeout: %d %v", cfg.Workers, cfg.ToolTimeout)
		}
		if cfg.Marker != config.MarkerIndex || cfg.BackupPolicy != "keep-first" {
			t.Errorf("unexpected marker/policy: %q %q", cfg.Marker, cfg.BackupPolicy)
		}
	})

	t.Run("file applies unless flag is set", func(t *testing.T) {
		t.Parallel()
		content := "root: /srv/sites\nworkers: 3\ndefaults:\n  jpegQuality: 75\n  pngLevel: 4\n"
		cfg, err := parseOptimizeFlags(t, content, "--png-level", "6")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Root != "/srv/sites" || cfg.Workers != 3 {
			t.Errorf("expected file values, got root=%q workers=%d", cfg.Root, cfg.Workers)
		}
		if cfg.Levels.JPEGQuality != 75 || cfg.Levels.PNGLevel != 6 {
			t.Errorf("expected quality 75 and flag png level 6, got %+v", cfg.Levels)
		}
	})

	t.Run("invalid file", func(t *testing.T) {
		t.Parallel()
		if _, err := parseOptimizeFlags(t, "workers: [1"); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()
		cmd := NewOptimizeCmd()
		if err := cmd.Flags().Parse([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatal(err)
		}
		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// shrinkRunner halves every file it is invoked on and fails on files
// whose base name is listed in fail.
type shrinkRunner struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (r *shrinkRunner) Run(_ context.Context, name string, args []string, out io.Writer) error {
	r.calls.Add(1)
	path := args[len(args)-1]
	if r.fail[filepath.Base(path)] {
		_, _ = fmt.Fprintf(out, "%s: cannot read %s\n", name, path) //nolint:errcheck // test output
		return &codec.ExitError{Tool: name, Code: 2}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data[:len(data)/2], 0600)
}

// allTools resolves every tool.
func allTools(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

// writeImage creates a file of size bytes with parent directories.
func writeImage(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0600); err != nil {
		t.Fatal(err)
	}
}

// testRun is a configured run over a temporary directory of sites.
type testRun struct {
	cfg    *config.Config
	runner *shrinkRunner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	top    string
}

// newTestRun creates a root whose images live only in subfolders (siteA/www
// and siteB/img), so the whole root is processed as one site.
func newTestRun(t *testing.T) *testRun {
	t.Helper()
	base := t.TempDir()
	top := filepath.Join(base, "data")
	writeImage(t, filepath.Join(top, "siteA", "www", "photo.JPG"), 4096)
	writeImage(t, filepath.Join(top, "siteB", "img", "logo.png"), 2048)
	writeImage(t, filepath.Join(top, "siteB", "img", "broken.gif"), 1024)

	cfg := config.NewConfig()
	cfg.Root = top
	cfg.LogFile = filepath.Join(base, "state", "imgopt.log")
	cfg.DBDir = filepath.Join(base, "db")
	cfg.JSONReport = true

	return &testRun{
		cfg:    cfg,
		runner: &shrinkRunner{fail: map[string]bool{"broken.gif": true}},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		top:    top,
	}
}

func (r *testRun) env() optimizeEnv {
	return optimizeEnv{lookPath: allTools, runner: r.runner, stdout: r.stdout, stderr: r.stderr}
}

// jsonTotals is the part of the JSON report the tests inspect.
type jsonTotals struct {
	Totals struct {
		BytesBefore    int64 `json:"bytes_before"`
		BytesAfter     int64 `json:"bytes_after"`
		FilesProcessed int   `json:"files_processed"`
		FilesSkipped   int   `json:"files_skipped"`
		FilesFailed    int   `json:"files_failed"`
	} `json:"totals"`
	FailedSites int `json:"failed_sites"`
}

func decodeTotals(t *testing.T, data []byte) jsonTotals {
	t.Helper()
	var got jsonTotals
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, data)
	}
	return got
}

// TestRunOptimize tests complete runs with a fake optimizer.
func TestRunOptimize(t *testing.T) {
	t.Parallel()

	t.Run("optimizes the tree and records history", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)

		// A failing file does not fail the run.
		if err := runOptimize(context.Background(), run.cfg, run.env()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := decodeTotals(t, run.stdout.Bytes())
		if got.Totals.FilesProcessed != 2 || got.Totals.FilesFailed != 1 {
			t.Errorf("expected 2 processed and 1 failed, got %+v", got.Totals)
		}
		if got.Totals.BytesBefore != 7168 || got.Totals.BytesAfter != 4096 {
			t.Errorf("expected 7168 -> 4096 bytes, got %+v", got.Totals)
		}

		// The root holds images only in subfolders, so it is one site and
		// backups mirror the whole tree below root/backup.
		backupPath := filepath.Join(run.top, "backup", "siteA", "www", "photo.JPG")
		if info, err := os.Stat(backupPath); err != nil || info.Size() != 4096 {
			t.Errorf("expected 4096 byte backup at %s: %v", backupPath, err)
		}
		if _, err := os.Stat(marker.Path(filepath.Join(run.top, "siteA", "www", "photo.JPG"))); err != nil {
			t.Errorf("expected marker: %v", err)
		}
		if _, err := os.Stat(marker.Path(filepath.Join(run.top, "siteB", "img", "broken.gif"))); !os.IsNotExist(err) {
			t.Error("expected no marker for the failed file")
		}

		logData, err := os.ReadFile(run.cfg.LogFile)
		if err != nil {
			t.Fatalf("expected log file: %v", err)
		}
		for _, want := range []string{"=== run started", "msg=parameters", "cannot read"} {
			if !strings.Contains(string(logData), want) {
				t.Errorf("expected log to contain %q", want)
			}
		}

		db, err := database.Open(run.cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close()
		runs, err := db.RecentRuns(context.Background(), 10)
		if err != nil || len(runs) != 1 {
			t.Fatalf("expected one recorded run, got %d: %v", len(runs), err)
		}
		if runs[0].SiteCount != 1 || runs[0].FilesFailed != 1 {
			t.Errorf("unexpected run record: %+v", runs[0])
		}
	})

	t.Run("second run skips marked files", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)
		run.cfg.SaveHistory = false

		if err := runOptimize(context.Background(), run.cfg, run.env()); err != nil {
			t.Fatalf("first run: %v", err)
		}
		first := run.runner.calls.Load()
		run.stdout.Reset()

		if err := runOptimize(context.Background(), run.cfg, run.env()); err != nil {
			t.Fatalf("second run: %v", err)
		}
		// Only the failed file is retried.
		if calls := run.runner.calls.Load() - first; calls != 1 {
			t.Errorf("expected 1 call on second run, got %d", calls)
		}
		got := decodeTotals(t, run.stdout.Bytes())
		if got.Totals.FilesSkipped != 2 {
			t.Errorf("expected 2 skipped files, got %+v", got.Totals)
		}
	})

	t.Run("dry run modifies nothing", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)
		run.cfg.DryRun = true
		run.cfg.SaveHistory = false

		if err := runOptimize(context.Background(), run.cfg, run.env()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.runner.calls.Load() != 0 {
			t.Error("expected no optimizer calls")
		}
		if _, err := os.Stat(filepath.Join(run.top, "backup")); !os.IsNotExist(err) {
			t.Error("expected no backup directory")
		}
		if _, err := os.Stat(run.cfg.DBDir); !os.IsNotExist(err) {
			t.Error("expected no database without history")
		}
	})

	t.Run("index marker store", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)
		run.cfg.Marker = config.MarkerIndex

		if err := runOptimize(context.Background(), run.cfg, run.env()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		photo := filepath.Join(run.top, "siteA", "www", "photo.JPG")
		if _, err := os.Stat(marker.Path(photo)); !os.IsNotExist(err) {
			t.Error("expected no sidecar marker with the index store")
		}

		db, err := database.Open(run.cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		ok, err := db.HasMarker(context.Background(), photo)
		if err != nil || !ok {
			t.Errorf("expected indexed marker for %s: %v", photo, err)
		}
	})

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)
		run.cfg.Root = filepath.Join(run.top, "missing")

		err := runOptimize(context.Background(), run.cfg, run.env())
		if !errors.Is(err, config.ErrRootNotFound) {
			t.Errorf("expected ErrRootNotFound, got %v", err)
		}
	})

	t.Run("missing tools", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)
		env := run.env()
		env.lookPath = func(name string) (string, error) {
			if name == "optipng" {
				return "", errors.New("not found")
			}
			return allTools(name)
		}

		err := runOptimize(context.Background(), run.cfg, env)
		var missing *codec.MissingToolsError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingToolsError, got %v", err)
		}
		if !strings.Contains(err.Error(), "sudo apt install optipng") {
			t.Errorf("expected install hint, got %q", err.Error())
		}
		if run.runner.calls.Load() != 0 {
			t.Error("expected no optimizer calls")
		}
	})

	t.Run("cancelled run still writes a report", func(t *testing.T) {
		t.Parallel()
		run := newTestRun(t)
		run.cfg.SaveHistory = false
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runOptimize(ctx, run.cfg, run.env())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if run.stdout.Len() == 0 {
			t.Error("expected a report")
		}
	})
}

// TestOutputReport tests report format selection and file output.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	run := newTestRun(t)
	run.cfg.SaveHistory = false
	run.cfg.JSONReport = false
	run.cfg.MarkdownReport = true
	run.cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "run.md")

	if err := runOptimize(context.Background(), run.cfg, run.env()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.stdout.Len() != 0 {
		t.Error("expected nothing on stdout when writing to a file")
	}

	data, err := os.ReadFile(run.cfg.ReportFile)
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if !strings.Contains(string(data), "# imgopt Report") {
		t.Errorf("expected Markdown report, got:\n%s", data)
	}
}
