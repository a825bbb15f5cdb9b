package config

import (
	"time"

	"github.com/nao1215/imgopt/internal/codec"
)

// SiteConfig holds optimizer overrides for one site.
// Pointer fields distinguish an explicit zero (e.g. pngLevel: 0) from an
// unset value.
type SiteConfig struct {
	// JPEGQuality overrides the jpegoptim maximum quality.
	JPEGQuality *int `yaml:"jpegQuality,omitempty"`

	// PNGLevel overrides the optipng level.
	PNGLevel *int `yaml:"pngLevel,omitempty"`

	// GIFLevel overrides the gifsicle level.
	GIFLevel *int `yaml:"gifLevel,omitempty"`

	// Exclude adds directory names skipped in this site.
	Exclude []string `yaml:"exclude,omitempty"`

	// Skip leaves the site out of the run entirely.
	Skip bool `yaml:"skip,omitempty"`
}

// Apply returns lv with the overrides set in s.
func (s SiteConfig) Apply(lv codec.Levels) codec.Levels {
	if s.JPEGQuality != nil {
		lv.JPEGQuality = *s.JPEGQuality
	}
	if s.PNGLevel != nil {
		lv.PNGLevel = *s.PNGLevel
	}
	if s.GIFLevel != nil {
		lv.GIFLevel = *s.GIFLevel
	}
	return lv
}

// File represents the configuration file structure.
//
// Example:
//
//	root: /var/www
//	workers: 4
//	exclude:
//	  - cache
//	defaults:
//	  jpegQuality: 85
//	sites:
//	  shop:
//	    pngLevel: 5
//	  legacy:
//	    skip: true
type File struct {
	// Root replaces the default root directory.
	Root string `yaml:"root,omitempty"`

	// Backup enables or disables backups.
	Backup *bool `yaml:"backup,omitempty"`

	// BackupPolicy is "overwrite" or "keep-first".
	BackupPolicy string `yaml:"backupPolicy,omitempty"`

	// Exclude lists directory names skipped in every site.
	Exclude []string `yaml:"exclude,omitempty"`

	// LogFile is the log destination.
	LogFile string `yaml:"log,omitempty"`

	// Workers is the number of files optimized concurrently.
	Workers int `yaml:"workers,omitempty"`

	// ToolTimeout bounds each optimizer invocation (e.g. "2m").
	ToolTimeout *time.Duration `yaml:"toolTimeout,omitempty"`

	// Marker is "sidecar" or "index".
	Marker string `yaml:"marker,omitempty"`

	// Defaults applies to every site unless a flag overrides it.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps a site directory name to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig returns the overrides for the site directory name.
// Defaults are not merged in; they are applied to the run configuration
// by Config.ApplyFile.
func (f *File) GetSiteConfig(name string) (SiteConfig, bool) {
	if f == nil || f.Sites == nil {
		return SiteConfig{}, false
	}
	site, ok := f.Sites[name]
	return site, ok
}
