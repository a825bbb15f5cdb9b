package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgopt/internal/config"
	"github.com/nao1215/imgopt/internal/database"
	"github.com/nao1215/imgopt/internal/pipeline"
)

// historyTimeLayout formats run timestamps in listings.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
// It reads the run history recorded by "imgopt optimize".
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past optimization runs",
		Long: `History lists the optimization runs recorded in the history database.

Examples:
  # List the 20 most recent runs
  imgopt history

  # Show how one site developed over time
  imgopt history --site /var/www/blog/www

  # Print the full report of a run
  imgopt history --show 12

  # Print a stored report as Markdown
  imgopt history --show 12 --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of entries to list")
	cmd.Flags().StringP("site", "s", "",
		"List the history of one site root")
	cmd.Flags().Int64P("show", "i", 0,
		"Print the report of the run with this ID")
	cmd.Flags().BoolP("json", "j", false,
		"Print the report as JSON (with --show)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the report as Markdown (with --show)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	site, err := flags.GetString("site")
	if err != nil {
		return err
	}
	show, err := flags.GetInt64("show")
	if err != nil {
		return err
	}
	jsonOut, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate flags before opening the database.
	if jsonOut && markdownOut {
		return config.ErrConflictingReportFormats
	}
	if show != 0 && site != "" {
		return errors.New("--show and --site cannot be used together")
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open history database (run \"imgopt optimize\" first): %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	switch {
	case show != 0:
		return showRun(ctx, out, db, show, jsonOut, markdownOut)
	case site != "":
		return listSiteHistory(ctx, out, db, site, limit)
	default:
		return listRuns(ctx, out, db, limit)
	}
}

// listRuns prints the most recent runs.
func listRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, limit int) error {
	runs, err := db.RecentRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		fmt.Fprintln(out, "\nUse 'imgopt optimize' to optimize a site.")
		return nil
	}

	fmt.Fprintf(out, "Recent runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-5s  %-6s  %-10s  %-9s  %-6s  %s\n",
		"ID", "Date", "Sites", "Failed", "Saved", "Processed", "Errors", "Root")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, r := range runs {
		root := r.Root
		if r.DryRun {
			root += " (dry-run)"
		}
		fmt.Fprintf(out, "  %-6d  %-19s  %-5d  %-6d  %-10s  %-9d  %-6d  %s\n",
			r.ID,
			r.StartedAt.Local().Format(historyTimeLayout),
			r.SiteCount,
			r.FailedSites,
			pipeline.FormatSize(r.Saved()),
			r.FilesProcessed,
			r.FilesFailed,
			root,
		)
	}

	fmt.Fprintln(out, "\nUse 'imgopt history --show <id>' to print the report of a run.")
	return nil
}

// listSiteHistory prints the summaries of one site across runs.
func listSiteHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, siteRoot string, limit int) error {
	records, err := db.SiteHistory(ctx, siteRoot, limit)
	if err != nil {
		return fmt.Errorf("failed to get site history: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No history found for %s\n", siteRoot)
		fmt.Fprintln(out, "\nSite roots are recorded as absolute paths, including a trailing /www.")
		return nil
	}

	fmt.Fprintf(out, "History of %s (%d runs):\n\n", siteRoot, len(records))
	fmt.Fprintf(out, "  %-6s  %-19s  %-10s  %-10s  %-9s  %-7s  %-6s\n",
		"Run", "Date", "Before", "Saved", "Processed", "Skipped", "Failed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))

	for _, r := range records {
		fmt.Fprintf(out, "  %-6d  %-19s  %-10s  %-10s  %-9d  %-7d  %-6d\n",
			r.RunID,
			r.StartedAt.Local().Format(historyTimeLayout),
			pipeline.FormatSize(r.BytesBefore),
			pipeline.FormatSize(r.BytesBefore-r.BytesAfter),
			r.FilesProcessed,
			r.FilesSkipped,
			r.FilesFailed,
		)
		if r.Error != "" {
			fmt.Fprintf(out, "          error: %s\n", r.Error)
		}
	}
	return nil
}

// showRun prints the stored report of one run.
func showRun(ctx context.Context, out io.Writer, db *database.HistoryDB, id int64, jsonOut, markdownOut bool) error {
	runReport, err := db.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", id, err)
	}
	if runReport == nil {
		return fmt.Errorf("run %d not found (use 'imgopt history' to list runs)", id)
	}

	_, err = newReportWriter(jsonOut, markdownOut, false, out).Write(runReport)
	return err
}
