package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned for files outside the three image families.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrTimeout is returned when a tool exceeds the invocation timeout.
var ErrTimeout = errors.New("optimizer timed out")

// ExitError reports a tool that ran but exited with a non-zero status.
type ExitError struct {
	Tool string
	Code int
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
}

// MissingToolsError lists required tools that are not on PATH.
type MissingToolsError struct {
	Tools []string
}

// Error implements error. The message includes an install hint.
func (e *MissingToolsError) Error() string {
	return fmt.Sprintf("missing tools: %s. Install: %s",
		strings.Join(e.Tools, ", "), e.InstallHint())
}

// InstallHint returns the package manager command that installs the
// missing tools.
func (e *MissingToolsError) InstallHint() string {
	return "sudo apt install " + strings.Join(e.Tools, " ")
}
