package tree

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nao1215/imgopt/internal/model"
)

// WWWDirName is the conventional document root inside a site directory.
const WWWDirName = "www"

// errFound stops ContainsImages at the first hit.
var errFound = errors.New("image found")

// WalkFunc is called for every qualifying image in encounter order.
// Returning an error stops the walk and the error is returned by Walk.
type WalkFunc func(file model.ImageFile) error

// SiteRoot applies the www convention: if dir/www exists and is a
// directory it is the effective site root, otherwise dir itself is.
func SiteRoot(dir string) string {
	candidate := filepath.Join(dir, WWWDirName)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	return dir
}

// HasWWW reports whether dir contains a www directory.
func HasWWW(dir string) bool {
	return SiteRoot(dir) != dir
}

// Walk visits every qualifying image under root, pruning excluded
// directory names at any depth. Entries are visited in lexical order.
//
// An error reading root itself is returned. Errors on nested entries
// (a file removed while walking, an unreadable subdirectory) are skipped so
// that one bad entry cannot stop the rest of the tree.
func Walk(root string, excl Exclusions, fn WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && excl.Contains(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		format, ok := model.FormatFromPath(d.Name())
		if !ok {
			return nil
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		return fn(model.ImageFile{Path: abs, Format: format, Size: size})
	})
}

// TotalSize sums the sizes of qualifying images under root.
// Files whose size cannot be read contribute zero, and a missing root
// totals zero. The same exclusions must be used for the before and after
// measurement of a site.
func TotalSize(root string, excl Exclusions) int64 {
	var total int64
	_ = Walk(root, excl, func(file model.ImageFile) error { //nolint:errcheck // unreadable trees count as zero
		total += file.Size
		return nil
	})
	return total
}

// Count returns the number of qualifying images under root.
func Count(root string, excl Exclusions) int {
	n := 0
	_ = Walk(root, excl, func(model.ImageFile) error { //nolint:errcheck // unreadable trees count as zero
		n++
		return nil
	})
	return n
}

// ContainsImages reports whether root holds at least one qualifying image
// outside excluded directories. It stops at the first match.
func ContainsImages(root string, excl Exclusions) bool {
	err := Walk(root, excl, func(model.ImageFile) error {
		return errFound
	})
	return errors.Is(err, errFound)
}
