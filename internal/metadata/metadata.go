// Package metadata inspects JPEG EXIF data before the optimizer strips it.
//
// Running jpegoptim with --strip-all removes every EXIF tag. The inspector
// records which privacy relevant tags (location, serial numbers, author)
// were present, so the run log and report show what a site had been
// publishing.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/imgopt/internal/model"
)

// DefaultReadLimit is how much of a file is scanned for an EXIF block.
// The APP1 segment is at most 64 KiB and sits near the start of the file.
const DefaultReadLimit = 512 * 1024

// Inspector finds privacy relevant metadata in an image.
type Inspector interface {
	Inspect(ctx context.Context, file model.ImageFile) ([]model.MetadataTag, error)
}

// EXIFInspector reads EXIF tags from JPEG files.
type EXIFInspector struct {
	readLimit int64
}

// NewEXIFInspector creates an EXIFInspector. A non-positive readLimit
// selects DefaultReadLimit.
func NewEXIFInspector(readLimit int64) *EXIFInspector {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	return &EXIFInspector{readLimit: readLimit}
}

// Inspect implements Inspector. Non-JPEG files and JPEGs without EXIF
// return no tags and no error.
func (i *EXIFInspector) Inspect(ctx context.Context, file model.ImageFile) ([]model.MetadataTag, error) {
	if file.Format != model.FormatJPEG {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, i.readLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Tags(data)
}

// Tags extracts privacy relevant EXIF tags from raw image bytes.
// Tags are sorted by descending severity, then by name. Duplicate tag
// names (the same tag in several IFDs) are reported once.
func Tags(data []byte) ([]model.MetadataTag, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to locate EXIF: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXIF: %w", err)
	}

	seen := make(map[string]bool)
	tags := make([]model.MetadataTag, 0)
	for _, entry := range entries {
		severity, ok := model.TagSeverity(entry.TagName)
		if !ok || seen[entry.TagName] {
			continue
		}
		seen[entry.TagName] = true
		tags = append(tags, model.MetadataTag{
			Name:     entry.TagName,
			Value:    entry.Formatted,
			Severity: severity,
		})
	}

	sort.SliceStable(tags, func(a, b int) bool {
		if tags[a].Severity != tags[b].Severity {
			return tags[a].Severity > tags[b].Severity
		}
		return tags[a].Name < tags[b].Name
	})
	return tags, nil
}
