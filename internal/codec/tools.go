package codec

import (
	"os/exec"
	"strconv"

	"github.com/nao1215/imgopt/internal/model"
)

// Default optimization parameters.
const (
	// DefaultJPEGQuality is the maximum JPEG quality passed to jpegoptim.
	DefaultJPEGQuality = 90

	// DefaultPNGLevel is the optipng optimization level.
	DefaultPNGLevel = 2

	// DefaultGIFLevel is the gifsicle optimization level.
	DefaultGIFLevel = 3
)

// Levels holds the per-family optimization parameters.
type Levels struct {
	JPEGQuality int
	PNGLevel    int
	GIFLevel    int
}

// DefaultLevels returns the default optimization parameters.
func DefaultLevels() Levels {
	return Levels{
		JPEGQuality: DefaultJPEGQuality,
		PNGLevel:    DefaultPNGLevel,
		GIFLevel:    DefaultGIFLevel,
	}
}

// Tool describes one external optimizer.
type Tool struct {
	// Name is the executable name looked up on PATH.
	Name string

	// Format is the image family the tool handles.
	Format model.Format

	// args builds the argument list for one file.
	args func(path string, lv Levels) []string
}

// Args returns the command line arguments for optimizing path.
func (t Tool) Args(path string, lv Levels) []string {
	return t.args(path, lv)
}

// tools is the fixed dispatch table.
var tools = []Tool{
	{
		Name:   "jpegoptim",
		Format: model.FormatJPEG,
		args: func(path string, lv Levels) []string {
			return []string{"--strip-all", "--max=" + strconv.Itoa(lv.JPEGQuality), path}
		},
	},
	{
		Name:   "optipng",
		Format: model.FormatPNG,
		args: func(path string, lv Levels) []string {
			return []string{"-o" + strconv.Itoa(lv.PNGLevel), path}
		},
	},
	{
		Name:   "gifsicle",
		Format: model.FormatGIF,
		args: func(path string, lv Levels) []string {
			return []string{"-O" + strconv.Itoa(lv.GIFLevel), "-b", path}
		},
	},
}

// Tools returns the dispatch table in a stable order.
func Tools() []Tool {
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}

// ToolFor returns the tool responsible for format.
func ToolFor(format model.Format) (Tool, bool) {
	for _, t := range tools {
		if t.Format == format {
			return t, true
		}
	}
	return Tool{}, false
}

// LookPathFunc resolves an executable name, like exec.LookPath.
type LookPathFunc func(name string) (string, error)

// CheckTools verifies that every optimizer is available.
// It returns a *MissingToolsError naming all missing tools, or nil.
// If lookPath is nil, exec.LookPath is used.
func CheckTools(lookPath LookPathFunc) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var missing []string
	for _, t := range tools {
		if _, err := lookPath(t.Name); err != nil {
			missing = append(missing, t.Name)
		}
	}
	if len(missing) > 0 {
		return &MissingToolsError{Tools: missing}
	}
	return nil
}

// ToolStatus is the availability of one tool.
type ToolStatus struct {
	Name string
	Path string
	Err  error
}

// Status reports the resolved path of every optimizer.
func Status(lookPath LookPathFunc) []ToolStatus {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	out := make([]ToolStatus, 0, len(tools))
	for _, t := range tools {
		p, err := lookPath(t.Name)
		out = append(out, ToolStatus{Name: t.Name, Path: p, Err: err})
	}
	return out
}
