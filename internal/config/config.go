package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/imgopt/internal/backup"
	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/model"
	"github.com/nao1215/imgopt/internal/pipeline"
	"github.com/nao1215/imgopt/internal/tree"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "imgopt"

	// DefaultRoot is the directory holding the sites of a typical web server.
	DefaultRoot = "/var/www"

	// DefaultWorkers processes files sequentially.
	DefaultWorkers = 1

	// DefaultToolTimeout bounds a single optimizer invocation.
	DefaultToolTimeout = codec.DefaultTimeout

	// DefaultLogFileName is the log file name inside the XDG state directory.
	DefaultLogFileName = "imgopt.log"

	// MarkerSidecar keeps markers as ".optimized" files next to images.
	MarkerSidecar = "sidecar"

	// MarkerIndex keeps markers in the history database.
	MarkerIndex = "index"
)

// Optimizer level ranges accepted by the tools.
const (
	MinJPEGQuality = 0
	MaxJPEGQuality = 100
	MinPNGLevel    = 0
	MaxPNGLevel    = 7
	MinGIFLevel    = 1
	MaxGIFLevel    = 3
)

// Config holds all configuration options for imgopt.
// It is populated from CLI flags and the configuration file, then passed
// through the application rather than kept in global state.
type Config struct {
	// Root is the top-level directory: one site or a directory of sites.
	Root string

	// Backup enables backup copies before files are mutated.
	Backup bool

	// BackupPolicy is "overwrite" (last backup wins) or "keep-first".
	BackupPolicy string

	// Force reprocesses files that already carry a marker.
	Force bool

	// DryRun only reports what would be optimized.
	DryRun bool

	// Exclude lists directory names skipped at any depth, in addition to
	// the backup directory.
	Exclude []string

	// LogFile is the append-only log destination.
	LogFile string

	// Levels are the optimizer settings.
	Levels codec.Levels

	// Workers is the number of files optimized concurrently per site.
	Workers int

	// ToolTimeout bounds each optimizer invocation. 0 disables it.
	ToolTimeout time.Duration

	// Marker selects the marker store: "sidecar" or "index".
	Marker string

	// Verbose enables debug output on the console.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file, if any.
	SiteConfigs *File

	// JSONReport writes the run report as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport writes the run report as Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file for the report. Empty means stdout.
	ReportFile string

	// DBDir is the directory of the history database.
	DBDir string

	// SaveHistory stores the run report in the history database.
	SaveHistory bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Root:         DefaultRoot,
		Backup:       true,
		BackupPolicy: string(backup.PolicyOverwrite),
		LogFile:      DefaultLogPath(),
		Levels:       codec.DefaultLevels(),
		Workers:      DefaultWorkers,
		ToolTimeout:  DefaultToolTimeout,
		Marker:       MarkerSidecar,
		DBDir:        XDGDataDir(),
		SaveHistory:  true,
	}
}

// XDGDataDir returns the XDG data directory for imgopt.
// On Linux: ~/.local/share/imgopt
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for imgopt.
// On Linux: ~/.config/imgopt
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory for imgopt.
// On Linux: ~/.local/state/imgopt
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultLogPath returns the default log file location.
func DefaultLogPath() string {
	return filepath.Join(XDGStateDir(), DefaultLogFileName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.Root == "" {
		return ErrNoRoot
	}

	if err := ValidateLevels(c.Levels); err != nil {
		return err
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.ToolTimeout < 0 {
		return ErrInvalidToolTimeout
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.Marker != MarkerSidecar && c.Marker != MarkerIndex {
		return fmt.Errorf("%w: %q", ErrInvalidMarker, c.Marker)
	}

	if _, err := backup.ParsePolicy(c.BackupPolicy); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidBackupPolicy, c.BackupPolicy)
	}

	if c.SiteConfigs != nil {
		for name, site := range c.SiteConfigs.Sites {
			if err := ValidateLevels(site.Apply(c.Levels)); err != nil {
				return fmt.Errorf("site %q: %w", name, err)
			}
		}
	}

	return nil
}

// ValidateLevels checks that every optimizer level is within the range
// its tool accepts.
func ValidateLevels(lv codec.Levels) error {
	if lv.JPEGQuality < MinJPEGQuality || lv.JPEGQuality > MaxJPEGQuality {
		return ErrInvalidJPEGQuality
	}
	if lv.PNGLevel < MinPNGLevel || lv.PNGLevel > MaxPNGLevel {
		return ErrInvalidPNGLevel
	}
	if lv.GIFLevel < MinGIFLevel || lv.GIFLevel > MaxGIFLevel {
		return ErrInvalidGIFLevel
	}
	return nil
}

// CheckRoot verifies that Root exists and is a directory.
func (c *Config) CheckRoot() error {
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRootNotFound, c.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootNotDirectory, c.Root)
	}
	return nil
}

// Exclusions returns the exclusion set: the backup directory plus Exclude.
func (c *Config) Exclusions() tree.Exclusions {
	return tree.NewExclusions(c.Exclude...)
}

// PipelineOptions converts the configuration into processing options.
// Validate must have succeeded.
func (c *Config) PipelineOptions() pipeline.Options {
	policy, err := backup.ParsePolicy(c.BackupPolicy)
	if err != nil {
		policy = backup.PolicyOverwrite
	}
	return pipeline.Options{
		Backup:       c.Backup,
		BackupPolicy: policy,
		Force:        c.Force,
		DryRun:       c.DryRun,
		Exclude:      c.Exclusions(),
		Levels:       c.Levels,
		Workers:      c.Workers,
	}
}

// RunOptions returns the snapshot stored with the run report.
func (c *Config) RunOptions() model.RunOptions {
	return model.RunOptions{
		Root:         c.Root,
		Backup:       c.Backup,
		BackupPolicy: c.BackupPolicy,
		Force:        c.Force,
		DryRun:       c.DryRun,
		Exclude:      c.Exclusions().Names(),
		JPEGQuality:  c.Levels.JPEGQuality,
		PNGLevel:     c.Levels.PNGLevel,
		GIFLevel:     c.Levels.GIFLevel,
		Workers:      c.Workers,
		Marker:       c.Marker,
	}
}

// SiteResolver returns the per-site override function for discovery.
// Without a configuration file every site uses the run options.
func (c *Config) SiteResolver() pipeline.SiteResolver {
	return func(name string, base pipeline.Options) (pipeline.Options, bool) {
		if c.SiteConfigs == nil {
			return base, false
		}
		site, ok := c.SiteConfigs.GetSiteConfig(name)
		if !ok {
			return base, false
		}
		if site.Skip {
			return base, true
		}
		base.Levels = site.Apply(base.Levels)
		if len(site.Exclude) > 0 {
			base.Exclude = base.Exclude.With(site.Exclude...)
		}
		return base, false
	}
}

// ApplyFile merges the configuration file into c. Settings whose flag was
// set explicitly on the command line are kept; changed reports whether a
// flag was set.
func (c *Config) ApplyFile(f *File, changed func(flag string) bool) {
	c.SiteConfigs = f
	if f == nil {
		return
	}

	if f.Root != "" && !changed("root") {
		c.Root = f.Root
	}
	if f.Backup != nil && !changed("no-backup") {
		c.Backup = *f.Backup
	}
	if f.BackupPolicy != "" && !changed("backup-policy") {
		c.BackupPolicy = f.BackupPolicy
	}
	if len(f.Exclude) > 0 {
		// Excludes accumulate: the file and the flags are both honored.
		c.Exclude = append(append([]string{}, f.Exclude...), c.Exclude...)
	}
	if f.LogFile != "" && !changed("log") {
		c.LogFile = f.LogFile
	}
	if f.Workers != 0 && !changed("workers") {
		c.Workers = f.Workers
	}
	if f.ToolTimeout != nil && !changed("tool-timeout") {
		c.ToolTimeout = *f.ToolTimeout
	}
	if f.Marker != "" && !changed("marker") {
		c.Marker = f.Marker
	}

	d := f.Defaults
	if d.JPEGQuality != nil && !changed("jpeg-quality") {
		c.Levels.JPEGQuality = *d.JPEGQuality
	}
	if d.PNGLevel != nil && !changed("png-level") {
		c.Levels.PNGLevel = *d.PNGLevel
	}
	if d.GIFLevel != nil && !changed("gif-level") {
		c.Levels.GIFLevel = *d.GIFLevel
	}
	if len(d.Exclude) > 0 {
		c.Exclude = append(c.Exclude, d.Exclude...)
	}
}
