// Package main provides the entry point for the imgopt CLI.
//
// imgopt losslessly optimizes the JPEG, PNG and GIF images of one or more
// web sites in place, keeping backups and skipping images optimized by an
// earlier run.
//
// Usage:
//
//	imgopt optimize --root /var/www
//	imgopt optimize --dry-run --root /data
//
// See --help for all available options.
package main

// main is the entry point for imgopt.
func main() {
	Execute()
}
