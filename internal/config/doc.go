// Package config provides configuration structures and utilities for imgopt.
// It defines the run options (root, backups, optimizer levels, workers,
// report format), the optional YAML configuration file and the per-site
// overrides resolved by site directory name.
package config
