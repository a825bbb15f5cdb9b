package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgopt/internal/config"
)

//go:embed templates/imgopt.yaml
var configTemplate embed.FS

// templatePath is the embedded template location.
const templatePath = "templates/imgopt.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new imgopt configuration file",
		Long: `Initialize creates a new .imgopt configuration file in the current directory.

The generated file documents every option with its default value and
contains commented examples of per-site overrides.

Examples:
  # Create .imgopt in current directory
  imgopt init

  # Create config file at a specific path
  imgopt init -o ~/.config/imgopt/config.yaml

  # Force overwrite existing file
  imgopt init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to set, for every site or per site directory:")
	fmt.Fprintln(out, "  - JPEG quality and PNG/GIF optimization levels")
	fmt.Fprintln(out, "  - Directories to exclude")
	fmt.Fprintln(out, "  - Sites to skip")

	return nil
}
