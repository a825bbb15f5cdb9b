// Package backup copies images into a mirrored backup tree before they are
// modified in place.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Policy decides what happens when a backup copy already exists.
type Policy string

const (
	// PolicyOverwrite replaces an existing copy; the last backup wins.
	PolicyOverwrite Policy = "overwrite"

	// PolicyKeepFirst leaves an existing copy untouched so the oldest
	// pre-optimization state remains recoverable.
	PolicyKeepFirst Policy = "keep-first"
)

// ErrOutsideSiteRoot is returned when the source is not below the site root.
var ErrOutsideSiteRoot = errors.New("file is outside the site root")

// ErrInvalidPolicy is returned by ParsePolicy for unknown values.
var ErrInvalidPolicy = errors.New("invalid backup policy: must be overwrite or keep-first")

// ParsePolicy converts a flag or config value into a Policy.
// An empty string selects PolicyOverwrite.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyKeepFirst:
		return PolicyKeepFirst, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Manager writes backup copies for one site root.
type Manager struct {
	siteRoot   string
	backupRoot string
	policy     Policy
}

// NewManager creates a Manager that mirrors files of siteRoot into
// backupRoot.
func NewManager(siteRoot, backupRoot string, policy Policy) *Manager {
	if policy == "" {
		policy = PolicyOverwrite
	}
	return &Manager{siteRoot: siteRoot, backupRoot: backupRoot, policy: policy}
}

// Root returns the backup directory.
func (m *Manager) Root() string {
	return m.backupRoot
}

// Ensure creates the backup directory if it does not exist.
func (m *Manager) Ensure() error {
	if err := os.MkdirAll(m.backupRoot, 0750); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", m.backupRoot, err)
	}
	return nil
}

// Destination returns where src would be copied.
func (m *Manager) Destination(src string) (string, error) {
	rel, err := filepath.Rel(m.siteRoot, src)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrOutsideSiteRoot, src, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideSiteRoot, src)
	}
	return filepath.Join(m.backupRoot, rel), nil
}

// Backup copies src to its mirrored location below the backup root.
// Intermediate directories are created. Permission bits and the
// modification time are preserved. The copy goes through a temporary file
// so a failed copy never leaves a truncated backup behind.
//
// It returns the destination path and whether a copy was written; with
// PolicyKeepFirst an existing destination is left as is.
func (m *Manager) Backup(src string) (string, bool, error) {
	dst, err := m.Destination(src)
	if err != nil {
		return "", false, err
	}

	if m.policy == PolicyKeepFirst {
		if _, err := os.Lstat(dst); err == nil {
			return dst, false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return dst, false, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := copyFile(src, dst); err != nil {
		return dst, false, err
	}
	return dst, true, nil
}

// copyFile copies src to dst preserving mode and mtime.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // src comes from the site walk
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary backup: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName) //nolint:errcheck // best effort cleanup
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close() //nolint:errcheck // copy error takes precedence
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary backup: %w", err)
	}
	if err = os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set backup mode: %w", err)
	}
	if err = os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set backup times: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("failed to move backup into place: %w", err)
	}
	return nil
}
