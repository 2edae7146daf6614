package metadata

import (
	"fmt"
	"strings"
)

// Field is a single raw EXIF tag as read from an image.
type Field struct {
	ID    uint16
	Name  string
	GPS   bool // field lives in the GPS IFD
	Value any
}

// Source reads the raw EXIF fields of an image. A nil slice and nil error means the
// image carries no EXIF.
type Source interface {
	Fields(path string) ([]Field, error)
}

// extractFunc copies a recognized field into md.
type extractFunc func(md *Metadata, name string, v any) error

// recognized is the allow-list of top-level EXIF fields, in TIFF tag-id order.
// Anything not listed here is dropped.
var recognized = []struct {
	name    string
	extract extractFunc
}{
	{Model, copyString},    // 0x0110
	{DateTime, copyString}, // 0x0132
}

// gpsPointer is the IFD0 tag that links to the GPS sub-IFD.
const gpsPointer uint16 = 0x8825

// gpsTagNames resolves GPS IFD tag ids.
var gpsTagNames = map[uint16]string{
	0x00: "GPSVersionID",
	0x01: "GPSLatitudeRef",
	0x02: "GPSLatitude",
	0x03: "GPSLongitudeRef",
	0x04: "GPSLongitude",
	0x05: "GPSAltitudeRef",
	0x06: "GPSAltitude",
	0x07: "GPSTimeStamp",
	0x08: "GPSSatellites",
	0x09: "GPSStatus",
	0x0A: "GPSMeasureMode",
	0x0B: "GPSDOP",
	0x0C: "GPSSpeedRef",
	0x0D: "GPSSpeed",
	0x0E: "GPSTrackRef",
	0x0F: "GPSTrack",
	0x10: "GPSImgDirectionRef",
	0x11: "GPSImgDirection",
	0x12: "GPSMapDatum",
	0x13: "GPSDestLatitudeRef",
	0x14: "GPSDestLatitude",
	0x15: "GPSDestLongitudeRef",
	0x16: "GPSDestLongitude",
	0x17: "GPSDestBearingRef",
	0x18: "GPSDestBearing",
	0x19: "GPSDestDistanceRef",
	0x1A: "GPSDestDistance",
	0x1B: "GPSProcessingMethod",
	0x1C: "GPSAreaInformation",
	0x1D: "GPSDateStamp",
	0x1E: "GPSDifferential",
	0x1F: "GPSHPositioningError",
}

// gpsName returns the GPS tag name for f, falling back to the reader's own name.
func gpsName(f Field) string {
	if n, ok := gpsTagNames[f.ID]; ok {
		return n
	}
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("GPSTag%#04x", f.ID)
}

func copyString(md *Metadata, name string, v any) error {
	switch t := v.(type) {
	case string:
		md.Set(name, strings.TrimRight(t, "\x00"))
	case []byte:
		md.Set(name, strings.TrimRight(string(t), "\x00"))
	default:
		return fmt.Errorf("%s: unexpected %T", name, v)
	}
	return nil
}
