package main

import (
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgopt/internal/codec"
	"github.com/nao1215/imgopt/internal/config"
	"github.com/nao1215/imgopt/internal/pipeline"
	"github.com/nao1215/imgopt/internal/tree"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the optimizer tools are installed",
		Long: `Check reports where jpegoptim, optipng and gifsicle were found on PATH.
It exits with status 1 if any of them is missing.

With --root it also lists the sites that "imgopt optimize" would process
and the number of images in each.

Examples:
  # Verify the tools
  imgopt check

  # Verify the tools and preview site discovery
  imgopt check --root /data -e cache`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("root", "r", "",
		"List the sites below this directory")
	cmd.Flags().StringSliceP("exclude", "e", nil,
		"Directory name to skip at any depth (repeatable)")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return err
	}
	exclude, err := cmd.Flags().GetStringSlice("exclude")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := printToolStatus(out, exec.LookPath); err != nil {
		return err
	}

	if root == "" {
		return nil
	}
	cfg := &config.Config{Root: root, Exclude: exclude}
	if err := cfg.CheckRoot(); err != nil {
		return err
	}
	return printSites(out, root, cfg.Exclusions())
}

// printToolStatus prints one line per optimizer and returns the
// *codec.MissingToolsError of codec.CheckTools if any tool is missing.
func printToolStatus(out io.Writer, lookPath codec.LookPathFunc) error {
	fmt.Fprintln(out, "Optimizer tools:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %-10s  %-8s  %s\n", "Tool", "Status", "Path")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 50))

	for _, st := range codec.Status(lookPath) {
		status, path := "ok", st.Path
		if st.Err != nil {
			status, path = "missing", "-"
		}
		fmt.Fprintf(out, "  %-10s  %-8s  %s\n", st.Name, status, path)
	}
	fmt.Fprintln(out)

	return codec.CheckTools(lookPath)
}

// printSites prints the discovered sites of root with their image counts.
func printSites(out io.Writer, root string, excl tree.Exclusions) error {
	sites, err := pipeline.Sites(root, excl)
	if err != nil {
		return err
	}

	if len(sites) == 0 {
		fmt.Fprintf(out, "No sites with images found below %s\n", root)
		return nil
	}

	fmt.Fprintf(out, "Sites below %s (%d):\n\n", root, len(sites))
	fmt.Fprintf(out, "  %-30s  %-8s  %s\n", "Site", "Images", "Size")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))

	for _, dir := range sites {
		siteRoot := tree.SiteRoot(dir)
		fmt.Fprintf(out, "  %-30s  %-8d  %s\n",
			filepath.Base(dir),
			tree.Count(siteRoot, excl),
			pipeline.FormatSize(tree.TotalSize(siteRoot, excl)),
		)
	}
	return nil
}
