package codec

import (
	"context"
	"errors"
	"io"
	"os/exec"
)

// Runner executes an external command, writing its combined output to out.
type Runner interface {
	Run(ctx context.Context, name string, args []string, out io.Writer) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. A non-zero exit status is returned as *ExitError.
// The process is killed when ctx is done.
func (ExecRunner) Run(ctx context.Context, name string, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // name comes from the fixed tool table
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Tool: name, Code: exitErr.ExitCode()}
	}
	return err
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args []string, out io.Writer) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, name string, args []string, out io.Writer) error {
	return f(ctx, name, args, out)
}
