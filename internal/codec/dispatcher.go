package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/imgopt/internal/model"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 5 * time.Minute

// Result describes one optimizer invocation.
type Result struct {
	// Tool is the executable that was invoked.
	Tool string

	// Args are the arguments the tool was invoked with.
	Args []string

	// Duration is the wall time of the invocation.
	Duration time.Duration

	// Err is nil on success.
	Err error
}

// Success reports whether the invocation succeeded.
func (r Result) Success() bool {
	return r.Err == nil
}

// Dispatcher maps images to their optimizer and runs it.
// It is safe for concurrent use.
type Dispatcher struct {
	runner  Runner
	timeout time.Duration
	output  io.Writer
	logger  *slog.Logger

	// mu serializes writes of captured tool output.
	mu sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.runner = r
		}
	}
}

// WithTimeout sets the per-invocation timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout >= 0 {
			d.timeout = timeout
		}
	}
}

// WithOutput sets the writer that receives raw tool output.
func WithOutput(w io.Writer) Option {
	return func(d *Dispatcher) {
		if w != nil {
			d.output = w
		}
	}
}

// WithLogger sets the logger used for invocation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher. By default it executes real tools
// with DefaultTimeout and discards their output.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		runner:  ExecRunner{},
		timeout: DefaultTimeout,
		output:  io.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Optimize runs the optimizer for file with the given levels.
// Tool output is buffered and appended to the output writer as one block,
// so concurrent invocations never interleave.
func (d *Dispatcher) Optimize(ctx context.Context, file model.ImageFile, lv Levels) Result {
	tool, ok := ToolFor(file.Format)
	if !ok {
		return Result{Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, file.Path)}
	}

	args := tool.Args(file.Path, lv)
	res := Result{Tool: tool.Name, Args: args}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	start := time.Now()
	err := d.runner.Run(runCtx, tool.Name, args, &buf)
	res.Duration = time.Since(start)

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %s", ErrTimeout, d.timeout, tool.Name)
	}
	res.Err = err

	d.logger.Debug("optimizer finished",
		"tool", tool.Name,
		"path", file.Path,
		"duration", res.Duration,
		"error", err,
	)

	d.writeOutput(buf.Bytes())
	return res
}

// writeOutput appends captured tool output to the output writer.
func (d *Dispatcher) writeOutput(p []byte) {
	if len(p) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.output.Write(p); err != nil {
		d.logger.Warn("failed to write optimizer output", "error", err)
		return
	}
	if p[len(p)-1] != '\n' {
		_, _ = d.output.Write([]byte{'\n'}) //nolint:errcheck // trailing newline is cosmetic
	}
}
