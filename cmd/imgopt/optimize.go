package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/config"
	"github.com/nao1215/imgopt/internal/database"
	applog "github.com/nao1215/imgopt/internal/log"
	"github.com/nao1215/imgopt/internal/marker"
	"github.com/nao1215/imgopt/internal/metadata"
	"github.com/nao1215/imgopt/internal/model"
	"github.com/nao1215/imgopt/internal/pipeline"
	"github.com/nao1215/imgopt/internal/report"
)

// NewOptimizeCmd creates the optimize command.
func NewOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize the images of one or more sites",
		Long: `Optimize losslessly recompresses every JPEG, PNG and GIF image below the
root with jpegoptim, optipng and gifsicle.

The root is a single site when it contains images anywhere below it,
ignoring excluded directories. Otherwise it is treated as a directory of
sites: every subdirectory that has a www directory or contains images is
processed as its own site, and a failing site does not stop the others.

Before an image is modified it is copied to <site>/backup/<relative path>.
After a successful optimization a "<image>.optimized" marker is written, so
later runs skip the image unless --force is given.

Examples:
  # Optimize the images below /var/www
  imgopt optimize

  # Show what would be optimized without touching any file
  imgopt optimize --dry-run --root /data

  # Reprocess everything with stronger PNG compression, four files at a time
  imgopt optimize --force --png-level 5 --workers 4

  # Skip cache directories and write a Markdown report
  imgopt optimize -e cache -e node_modules --markdown -o report.md`,
		Args: cobra.NoArgs,
		RunE: runOptimizeCmd,
	}

	// Target flags
	cmd.Flags().StringP("root", "r", config.DefaultRoot,
		"Top-level directory: a single site or a directory of sites")
	cmd.Flags().StringSliceP("exclude", "e", nil,
		"Directory name to skip at any depth (repeatable, \"backup\" is always skipped)")

	// Behavior flags
	cmd.Flags().Bool("no-backup", false,
		"Do not copy images to <site>/backup before modifying them")
	cmd.Flags().String("backup-policy", "overwrite",
		"Existing backup handling: overwrite or keep-first")
	cmd.Flags().Bool("force", false,
		"Reprocess images that already carry an optimization marker")
	cmd.Flags().Bool("dry-run", false,
		"Report what would be optimized without modifying anything")
	cmd.Flags().String("marker", config.MarkerSidecar,
		"Marker store: sidecar (.optimized files) or index (history database)")

	// Optimizer flags
	cmd.Flags().Int("jpeg-quality", codec.DefaultJPEGQuality,
		"Maximum JPEG quality passed to jpegoptim (0-100)")
	cmd.Flags().Int("png-level", codec.DefaultPNGLevel,
		"optipng optimization level (0-7)")
	cmd.Flags().Int("gif-level", codec.DefaultGIFLevel,
		"gifsicle optimization level (1-3)")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of images optimized concurrently per site")
	cmd.Flags().Duration("tool-timeout", config.DefaultToolTimeout,
		"Timeout for a single optimizer run (0 disables it)")

	// Logging and configuration
	cmd.Flags().String("log", config.DefaultLogPath(),
		"Append-only log file")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .imgopt in current directory, XDG config or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")

	return cmd
}

// runOptimizeCmd executes the optimize command.
func runOptimizeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := optimizeEnv{
		lookPath: exec.LookPath,
		runner:   codec.ExecRunner{},
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
	}
	return runOptimize(ctx, cfg, env)
}

// buildConfig creates a Config from cobra command flags and the
// configuration file. Flags set explicitly win over the file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Root, err = flags.GetString("root"); err != nil {
		return nil, err
	}
	if cfg.Exclude, err = flags.GetStringSlice("exclude"); err != nil {
		return nil, err
	}

	noBackup, err := flags.GetBool("no-backup")
	if err != nil {
		return nil, err
	}
	cfg.Backup = !noBackup

	if cfg.BackupPolicy, err = flags.GetString("backup-policy"); err != nil {
		return nil, err
	}
	if cfg.Force, err = flags.GetBool("force"); err != nil {
		return nil, err
	}
	if cfg.DryRun, err = flags.GetBool("dry-run"); err != nil {
		return nil, err
	}
	if cfg.Marker, err = flags.GetString("marker"); err != nil {
		return nil, err
	}
	if cfg.Levels.JPEGQuality, err = flags.GetInt("jpeg-quality"); err != nil {
		return nil, err
	}
	if cfg.Levels.PNGLevel, err = flags.GetInt("png-level"); err != nil {
		return nil, err
	}
	if cfg.Levels.GIFLevel, err = flags.GetInt("gif-level"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.ToolTimeout, err = flags.GetDuration("tool-timeout"); err != nil {
		return nil, err
	}
	if cfg.LogFile, err = flags.GetString("log"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently run without one.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file, flags.Changed)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// optimizeEnv holds the process-level collaborators of a run.
type optimizeEnv struct {
	lookPath codec.LookPathFunc
	runner   codec.Runner
	stdout   io.Writer
	stderr   io.Writer
}

// runOptimize executes an optimization run with a validated configuration.
// Failed files and failed sites are reported but do not make the run fail.
func runOptimize(ctx context.Context, cfg *config.Config, env optimizeEnv) error {
	runLog, err := applog.NewRunLogger(applog.RunOptions{
		FilePath: cfg.LogFile,
		Console:  env.stderr,
		Verbose:  cfg.Verbose,
	})
	if err != nil {
		return err
	}
	defer runLog.Close()
	logger := runLog.Logger

	logger.Info("parameters",
		"root", cfg.Root,
		"backup", cfg.Backup,
		"force", cfg.Force,
		"dry_run", cfg.DryRun,
		"exclude", cfg.Exclusions().Names(),
	)
	logger.Debug("optimizer settings",
		"jpeg_quality", cfg.Levels.JPEGQuality,
		"png_level", cfg.Levels.PNGLevel,
		"gif_level", cfg.Levels.GIFLevel,
		"workers", cfg.Workers,
		"tool_timeout", cfg.ToolTimeout,
		"marker", cfg.Marker,
		"backup_policy", cfg.BackupPolicy,
	)

	if err := cfg.CheckRoot(); err != nil {
		logger.Error("root directory unusable", "root", cfg.Root, "error", err)
		return err
	}

	if err := codec.CheckTools(env.lookPath); err != nil {
		logger.Error("required tools are missing", "error", err)
		return err
	}

	db, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	processor := pipeline.NewProcessor(
		codec.NewDispatcher(
			codec.WithRunner(env.runner),
			codec.WithTimeout(cfg.ToolTimeout),
			codec.WithOutput(runLog.Output),
			codec.WithLogger(logger),
		),
		pipeline.WithProcessorLogger(logger),
		pipeline.WithMarkerStore(newMarkerStore(cfg, db, logger)),
		pipeline.WithInspector(metadata.NewEXIFInspector(metadata.DefaultReadLimit)),
	)
	discoverer := pipeline.NewDiscoverer(processor,
		pipeline.WithDiscovererLogger(logger),
		pipeline.WithSiteResolver(cfg.SiteResolver()),
	)

	runReport := model.NewRunReport(cfg.RunOptions())
	sites, runErr := discoverer.Run(ctx, cfg.Root, cfg.PipelineOptions())
	runReport.Finish(sites)

	if runErr != nil {
		logger.Warn("run stopped early", "error", runErr, "sites_done", len(sites))
	}

	saveHistory(cfg, db, runReport, logger)

	if err := outputReport(cfg, runReport, env.stdout); err != nil {
		logger.Error("report failed", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}

// openHistory opens the history database when the run records history or
// keeps markers in it. An unusable database only disables history; the
// index marker store cannot work without it.
func openHistory(cfg *config.Config, logger *slog.Logger) (*database.HistoryDB, error) {
	needIndex := cfg.Marker == config.MarkerIndex
	if !cfg.SaveHistory && !needIndex {
		return nil, nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		if needIndex {
			return nil, fmt.Errorf("failed to open marker index: %w", err)
		}
		logger.Warn("history disabled", "dir", cfg.DBDir, "error", err)
		return nil, nil
	}
	logger.Debug("database opened", "path", db.Path())
	return db, nil
}

// newMarkerStore returns the marker store selected by the configuration.
func newMarkerStore(cfg *config.Config, db *database.HistoryDB, logger *slog.Logger) marker.Store {
	if cfg.Marker == config.MarkerIndex && db != nil {
		return marker.NewIndexStore(db, logger)
	}
	return marker.NewSidecarStore()
}

// saveHistory records the run in the history database if enabled.
// It runs on a fresh context so an interrupted run is still recorded.
func saveHistory(cfg *config.Config, db *database.HistoryDB, runReport *model.RunReport, logger *slog.Logger) {
	if db == nil || !cfg.SaveHistory {
		return
	}
	id, err := db.SaveRun(context.Background(), runReport)
	if err != nil {
		logger.Error("failed to save run history", "error", err)
		return
	}
	logger.Debug("run saved to history", "id", id)
}

// outputReport writes the run report in the requested format to the report
// file or stdout.
func outputReport(cfg *config.Config, runReport *model.RunReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-selected report path
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg.JSONReport, cfg.MarkdownReport, cfg.Verbose, output).Write(runReport)
	return err
}

// newReportWriter selects the report format. The text report is the default.
func newReportWriter(jsonOut, markdownOut, verbose bool, output io.Writer) report.Writer {
	switch {
	case jsonOut:
		return report.NewJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case markdownOut:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(verbose))
	}
}
