package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunOptions configures NewRunLogger.
type RunOptions struct {
	// FilePath is the append-only log file. Empty disables the file sink.
	FilePath string

	// Console receives message-only lines. Nil disables the console sink.
	Console io.Writer

	// Verbose lowers the console level from Info to Debug.
	// The file sink always records Debug and above.
	Verbose bool

	// Color controls console coloring. Empty means ColorAuto.
	Color ColorMode
}

// RunLogger bundles the logger of one run with its raw output sink.
type RunLogger struct {
	// Logger is the structured logger writing to both sinks.
	Logger *slog.Logger

	// Output receives raw tool output. It writes to the log file only
	// and is safe for concurrent use.
	Output io.Writer

	file *os.File
}

// NewRunLogger opens the log file in append mode (creating parent
// directories) and builds a logger over the file and console sinks.
// It writes a run header line to the file.
func NewRunLogger(opts RunOptions) (*RunLogger, error) {
	handlers := make([]slog.Handler, 0, 2)
	run := &RunLogger{Output: io.Discard}

	if opts.FilePath != "" {
		if dir := filepath.Dir(opts.FilePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640) //nolint:gosec // user-selected log path
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		run.file = f

		sink := &lockedWriter{w: f}
		run.Output = sink
		fmt.Fprintf(sink, "=== run started %s ===\n", time.Now().Format(time.RFC3339))
		handlers = append(handlers, slog.NewTextHandler(sink, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if opts.Console != nil {
		level := slog.LevelInfo
		if opts.Verbose {
			level = slog.LevelDebug
		}
		mode := opts.Color
		if mode == "" {
			mode = ColorAuto
		}
		handlers = append(handlers, NewConsoleHandler(opts.Console, level, mode))
	}

	run.Logger = slog.New(NewFanoutHandler(handlers...))
	return run, nil
}

// Close closes the log file.
func (r *RunLogger) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// NewConsoleLogger creates a logger that writes only to w.
// It is used by commands that do not process images.
func NewConsoleLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(NewConsoleHandler(w, level, ColorAuto))
}

// NewDiscardLogger returns a logger that drops every record.
func NewDiscardLogger() *slog.Logger {
	return slog.New(NewFanoutHandler())
}

// lockedWriter serializes writes to w.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// Write implements io.Writer.
func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
