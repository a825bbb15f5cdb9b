package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and Config.CheckRoot()
// and can be matched with errors.Is().
var (
	// ErrNoRoot is returned when the root directory is empty.
	ErrNoRoot = errors.New("no root directory specified")

	// ErrRootNotFound is returned when the root directory does not exist.
	ErrRootNotFound = errors.New("root directory not found")

	// ErrRootNotDirectory is returned when the root path is not a directory.
	ErrRootNotDirectory = errors.New("root path is not a directory")

	// ErrInvalidJPEGQuality is returned when the JPEG quality is outside 0..100.
	ErrInvalidJPEGQuality = errors.New("invalid JPEG quality: must be between 0 and 100")

	// ErrInvalidPNGLevel is returned when the PNG level is outside 0..7.
	ErrInvalidPNGLevel = errors.New("invalid PNG optimization level: must be between 0 and 7")

	// ErrInvalidGIFLevel is returned when the GIF level is outside 1..3.
	ErrInvalidGIFLevel = errors.New("invalid GIF optimization level: must be between 1 and 3")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidToolTimeout is returned when the tool timeout is negative.
	// Use 0 to disable the timeout.
	ErrInvalidToolTimeout = errors.New("invalid tool timeout: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMarker is returned for an unknown marker store name.
	ErrInvalidMarker = errors.New("invalid marker store: must be sidecar or index")

	// ErrInvalidBackupPolicy is returned for an unknown backup policy.
	ErrInvalidBackupPolicy = errors.New("invalid backup policy: must be overwrite or keep-first")
)
