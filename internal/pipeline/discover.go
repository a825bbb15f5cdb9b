package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/nao1215/imgopt/internal/model"
	"github.com/nao1215/imgopt/internal/tree"
)

// SiteProcessor processes one site directory.
// *Processor implements it.
type SiteProcessor interface {
	Process(ctx context.Context, dir string, opts Options) (model.SiteSummary, error)
}

// SiteResolver derives the options of a site from the run options.
// name is the site directory name. Returning skip=true leaves the site
// untouched.
type SiteResolver func(name string, base Options) (opts Options, skip bool)

// Discoverer finds the sites below a top root and processes each of them
// in isolation.
type Discoverer struct {
	processor SiteProcessor
	resolve   SiteResolver
	logger    *slog.Logger
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithDiscovererLogger sets the logger.
func WithDiscovererLogger(logger *slog.Logger) DiscovererOption {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

// WithSiteResolver installs per-site option overrides.
func WithSiteResolver(resolve SiteResolver) DiscovererOption {
	return func(d *Discoverer) {
		if resolve != nil {
			d.resolve = resolve
		}
	}
}

// NewDiscoverer creates a Discoverer that hands every site to processor.
func NewDiscoverer(processor SiteProcessor, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		processor: processor,
		resolve: func(_ string, base Options) (Options, bool) {
			return base, false
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Sites returns the site directories of topRoot in processing order.
//
// topRoot is a single site when a qualifying image exists anywhere below
// it, with excluded directories pruned. Otherwise topRoot is a container
// and each immediate subdirectory, in lexicographic order, is a site if it
// has a www directory or contains images. Excluded names and
// non-directories are skipped.
func Sites(topRoot string, excl tree.Exclusions) ([]string, error) {
	if tree.ContainsImages(topRoot, excl) {
		return []string{topRoot}, nil
	}

	entries, err := os.ReadDir(topRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", topRoot, err)
	}

	sites := make([]string, 0, len(entries))
	for _, entry := range entries {
		if excl.Contains(entry.Name()) {
			continue
		}
		path := filepath.Join(topRoot, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		if tree.HasWWW(path) || tree.ContainsImages(path, excl) {
			sites = append(sites, path)
		}
	}
	return sites, nil
}

// Run processes every site of topRoot in order.
//
// The failure or panic of one site is logged, recorded in its summary and
// does not stop the remaining sites. Run returns an error only when
// topRoot cannot be listed or ctx is cancelled; the summaries collected so
// far are returned in both cases.
func (d *Discoverer) Run(ctx context.Context, topRoot string, opts Options) ([]model.SiteSummary, error) {
	excl := opts.Exclude
	if excl == nil {
		excl = tree.NewExclusions()
		opts.Exclude = excl
	}

	sites, err := Sites(topRoot, excl)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		d.logger.Warn("no sites with images found", "root", topRoot)
	}

	summaries := make([]model.SiteSummary, 0, len(sites))
	for _, dir := range sites {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("run cancelled", "remaining_from", dir, "reason", err)
			return summaries, err
		}

		name := filepath.Base(dir)
		siteOpts, skip := d.resolve(name, opts)
		if skip {
			d.logger.Info("site skipped by configuration", "site", dir)
			continue
		}

		summaries = append(summaries, d.processSite(ctx, dir, siteOpts))
	}
	return summaries, ctx.Err()
}

// processSite runs one site and turns errors and panics into the summary.
func (d *Discoverer) processSite(ctx context.Context, dir string, opts Options) (summary model.SiteSummary) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while processing site",
				"site", dir,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			summary = failedSummary(summary, dir, fmt.Sprintf("panic: %v", r))
		}
	}()

	s, err := d.processor.Process(ctx, dir, opts)
	summary = s
	if err != nil {
		d.logger.Error("failed to process site", "site", dir, "error", err)
		summary = failedSummary(summary, dir, err.Error())
	}
	return summary
}

// failedSummary fills the identity of a failed site summary.
func failedSummary(s model.SiteSummary, dir, msg string) model.SiteSummary {
	if s.SiteRoot == "" {
		s.SiteRoot = tree.SiteRoot(dir)
	}
	if s.Name == "" {
		s.Name = filepath.Base(dir)
	}
	s.Error = msg
	return s
}
