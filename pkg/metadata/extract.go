package metadata

import (
	"fmt"
	"image"
	"os"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"k8s.io/klog/v2"
)

// Extractor turns an image's EXIF into Metadata.
type Extractor struct {
	src Source
}

// NewExtractor returns an Extractor reading from src. A nil src uses goexif.
func NewExtractor(src Source) *Extractor {
	if src == nil {
		src = NativeSource{}
	}
	return &Extractor{src: src}
}

// Extract reads path with the default goexif source.
func Extract(path string) (*Metadata, error) {
	return NewExtractor(nil).Extract(path)
}

// Extract returns the recognized metadata of the image at path. It fails only if the
// file cannot be opened or decoded; missing or broken EXIF yields empty Metadata.
func (e *Extractor) Extract(path string) (*Metadata, error) {
	if err := checkDecodable(path); err != nil {
		return nil, err
	}

	md := New()
	fields, err := e.src.Fields(path)
	if err != nil {
		klog.Warningf("unable to read exif from %s: %v", path, err)
		return md, nil
	}

	apply(md, fields)
	klog.V(1).Infof("%s: %d metadata fields", path, md.Len())
	return md, nil
}

// checkDecodable verifies path holds an image in a registered format.
func checkDecodable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrDecode, path, err)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDecode, path, err)
	}
	return nil
}

// apply copies allow-listed fields into md and decodes the GPS block.
func apply(md *Metadata, fields []Field) {
	byName := map[string]Field{}
	var gps []Field
	hasGPS := false

	for _, f := range fields {
		switch {
		case f.GPS:
			gps = append(gps, f)
			hasGPS = true
		case f.Name == GPSInfo:
			hasGPS = true
		default:
			if _, seen := byName[f.Name]; !seen {
				byName[f.Name] = f
			}
		}
	}

	for _, r := range recognized {
		f, ok := byName[r.name]
		if !ok {
			continue
		}
		if err := r.extract(md, r.name, f.Value); err != nil {
			klog.V(1).Infof("skipping %s: %v", r.name, err)
		}
	}

	if !hasGPS {
		return
	}

	sort.SliceStable(gps, func(i, j int) bool {
		if gps[i].ID != gps[j].ID {
			return gps[i].ID < gps[j].ID
		}
		return gps[i].Name < gps[j].Name
	})

	block := NewGPSBlock()
	for _, f := range gps {
		block.Set(gpsName(f), f.Value)
	}
	md.Set(GPSInfo, block)

	lat, lon, err := Coordinates(block)
	if err != nil {
		klog.V(1).Infof("no coordinates: %v", err)
		return
	}
	md.Set(Latitude, lat)
	md.Set(Longitude, lon)
}
