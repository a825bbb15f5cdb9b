package model

// Severity represents how much an embedded metadata tag reveals about the
// photographer or the device. It is used to rank EXIF tags found in images
// before the JPEG codec strips them.
type Severity int

const (
	// SeverityInfo indicates tags with no direct privacy impact.
	SeverityInfo Severity = iota

	// SeverityLow indicates tags such as editing software.
	SeverityLow

	// SeverityMedium indicates tags that narrow down the device, such as camera model.
	SeverityMedium

	// SeverityHigh indicates identifying tags such as serial numbers or the author.
	SeverityHigh

	// SeverityCritical indicates location data.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// tagSeverity maps EXIF tag names to their privacy severity.
// Tags absent from this map are not reported.
var tagSeverity = map[string]Severity{
	"GPSLatitude":        SeverityCritical,
	"GPSLongitude":       SeverityCritical,
	"GPSLatitudeRef":     SeverityCritical,
	"GPSLongitudeRef":    SeverityCritical,
	"GPSAltitude":        SeverityCritical,
	"SerialNumber":       SeverityHigh,
	"CameraSerialNumber": SeverityHigh,
	"BodySerialNumber":   SeverityHigh,
	"LensSerialNumber":   SeverityHigh,
	"Artist":             SeverityHigh,
	"Author":             SeverityHigh,
	"XPAuthor":           SeverityHigh,
	"CameraOwnerName":    SeverityHigh,
	"Copyright":          SeverityMedium,
	"Make":               SeverityMedium,
	"Model":              SeverityMedium,
	"LensModel":          SeverityMedium,
	"Software":           SeverityLow,
	"ProcessingSoftware": SeverityLow,
	"HostComputer":       SeverityLow,
	"DateTimeOriginal":   SeverityInfo,
	"OffsetTimeOriginal": SeverityInfo,
}

// TagSeverity returns the severity of an EXIF tag and whether the tag is
// considered privacy relevant at all.
func TagSeverity(tagName string) (Severity, bool) {
	s, ok := tagSeverity[tagName]
	return s, ok
}

// MetadataTag is a privacy relevant EXIF tag found in an image.
type MetadataTag struct {
	// Name is the EXIF tag name (e.g., "GPSLatitude").
	Name string `json:"name"`

	// Value is the formatted tag value.
	Value string `json:"value"`

	// Severity ranks the tag.
	Severity Severity `json:"severity"`
}

// HighestSeverity returns the highest severity among tags.
// It returns SeverityInfo for an empty slice.
func HighestSeverity(tags []MetadataTag) Severity {
	highest := SeverityInfo
	for _, tag := range tags {
		if tag.Severity > highest {
			highest = tag.Severity
		}
	}
	return highest
}
