package metadata

import (
	"fmt"
	"math"
	"strings"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"
)

// exiftoolNames maps exiftool tag names onto their EXIF names.
var exiftoolNames = map[string]string{
	"Model":      Model,
	"ModifyDate": DateTime,
}

// gpsIDs is the reverse of gpsTagNames.
var gpsIDs = func() map[string]uint16 {
	m := map[string]uint16{}
	for id, n := range gpsTagNames {
		m[n] = id
	}
	return m
}()

// ExiftoolSource reads EXIF through a long-running exiftool process. It handles
// containers goexif does not, such as HEIC and XMP sidecars.
type ExiftoolSource struct {
	et *exiftool.Exiftool
}

// NewExiftoolSource starts exiftool in numeric (no print conversion) mode.
func NewExiftoolSource() (*ExiftoolSource, error) {
	et, err := exiftool.NewExiftool(exiftool.NoPrintConversion())
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return &ExiftoolSource{et: et}, nil
}

// Close stops the exiftool process.
func (s *ExiftoolSource) Close() error {
	return s.et.Close()
}

// Fields returns the recognized and GPS fields exiftool reports for path.
func (s *ExiftoolSource) Fields(path string) ([]Field, error) {
	fis := s.et.ExtractMetadata(path)
	if len(fis) == 0 {
		return nil, nil
	}
	fi := fis[0]
	if fi.Err != nil {
		return nil, fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	for k, v := range fi.Fields {
		klog.V(2).Infof("%q=%v", k, v)
	}

	fields := []Field{}
	for k, name := range exiftoolNames {
		v, err := fi.GetString(k)
		if err != nil {
			klog.V(1).Infof("unable to get %s for %s: %v", k, path, err)
			continue
		}
		fields = append(fields, Field{Name: name, Value: v})
	}

	for k, v := range fi.Fields {
		if !strings.HasPrefix(k, "GPS") {
			continue
		}
		id, ok := gpsIDs[k]
		if !ok {
			id = math.MaxUint16
		}
		if k == "GPSLatitude" || k == "GPSLongitude" {
			v = decimalToDMS(v)
		}
		fields = append(fields, Field{ID: id, Name: k, GPS: true, Value: v})
	}

	return fields, nil
}

// decimalToDMS turns exiftool's unsigned decimal degrees into a degrees-only triple,
// leaving values it cannot read untouched.
func decimalToDMS(v any) any {
	f, err := ToFloat(v)
	if err != nil {
		return v
	}
	return []any{math.Abs(f), 0.0, 0.0}
}
