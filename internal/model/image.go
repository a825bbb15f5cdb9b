package model

import (
	"path/filepath"
	"strings"
)

// Format identifies the codec family of an image file.
// The jpg and jpeg extensions share one family.
type Format int

const (
	// FormatUnknown is any file that is not a recognized image.
	FormatUnknown Format = iota

	// FormatJPEG covers .jpg and .jpeg.
	FormatJPEG

	// FormatPNG covers .png.
	FormatPNG

	// FormatGIF covers .gif.
	FormatGIF
)

// extensionFormats maps lowercase extensions to their codec family.
var extensionFormats = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
}

// String returns the lowercase family name.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so formats serialize by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// FormatFromPath returns the codec family for path based on its extension.
// Matching is case-insensitive: "photo.JPG" is a JPEG.
func FormatFromPath(path string) (Format, bool) {
	f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// ImageFile is a qualifying image found under a site root.
type ImageFile struct {
	// Path is the absolute path of the file.
	Path string `json:"path"`

	// Format is the codec family derived from the extension.
	Format Format `json:"format"`

	// Size is the byte size observed when the file was discovered.
	Size int64 `json:"size"`
}
