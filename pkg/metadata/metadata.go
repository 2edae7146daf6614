// Package metadata extracts postcard-relevant fields from a photo's embedded EXIF.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Canonical metadata keys.
const (
	Model       = "Model"
	DateTime    = "DateTime"
	GPSInfo     = "GPSInfo"
	Latitude    = "Latitude"
	Longitude   = "Longitude"
	MapboxStyle = "MapboxStyle"
	MapZoom     = "MapZoom"
	MapImage    = "map_image"
	Note        = "Note"
	Caption     = "Caption"
)

// ErrDecode is returned when a source image cannot be opened or decoded at all.
var ErrDecode = errors.New("unable to decode image")

// Metadata is an insertion-ordered mapping of field name to value.
type Metadata struct {
	*orderedmap.OrderedMap[string, any]
}

// New returns an empty Metadata.
func New() *Metadata {
	return &Metadata{orderedmap.New[string, any]()}
}

// Keys returns the field names in insertion order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, m.Len())
	for p := m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Clone returns a shallow copy that can be annotated without touching m.
func (m *Metadata) Clone() *Metadata {
	c := New()
	for p := m.Oldest(); p != nil; p = p.Next() {
		c.Set(p.Key, p.Value)
	}
	return c
}

// Coordinates returns the decimal Latitude and Longitude, if both are present and numeric.
func (m *Metadata) Coordinates() (lat float64, lon float64, ok bool) {
	lv, lok := m.Get(Latitude)
	ov, ook := m.Get(Longitude)
	if !lok || !ook {
		return 0, 0, false
	}

	lat, err := ToFloat(lv)
	if err != nil {
		return 0, 0, false
	}
	lon, err = ToFloat(ov)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// HasCoordinates reports whether both Latitude and Longitude keys are set.
func (m *Metadata) HasCoordinates() bool {
	_, lok := m.Get(Latitude)
	_, ook := m.Get(Longitude)
	return lok && ook
}

// StringValue returns the value for key formatted for display.
func (m *Metadata) StringValue(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// IntValue returns the value for key as an int, or def if absent or not integral.
func (m *Metadata) IntValue(key string, def int) int {
	v, ok := m.Get(key)
	if !ok {
		return def
	}

	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if t == float64(int(t)) {
			return int(t)
		}
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i
		}
	}
	return def
}

// Image returns the image stored under key, if any.
func (m *Metadata) Image(key string) (image.Image, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	i, ok := v.(image.Image)
	return i, ok && i != nil
}

// MarshalJSON encodes the fields in order. Image values are omitted.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, any]()
	for p := m.Oldest(); p != nil; p = p.Next() {
		if _, ok := p.Value.(image.Image); ok {
			continue
		}
		out.Set(p.Key, p.Value)
	}
	return json.Marshal(out)
}

// GPSBlock holds the raw GPS IFD fields keyed by GPS tag name, in tag-id order.
type GPSBlock struct {
	*orderedmap.OrderedMap[string, any]
}

// NewGPSBlock returns an empty GPSBlock.
func NewGPSBlock() *GPSBlock {
	return &GPSBlock{orderedmap.New[string, any]()}
}

// String renders the block as name=value pairs.
func (g *GPSBlock) String() string {
	s := "{"
	for p := g.Oldest(); p != nil; p = p.Next() {
		if p != g.Oldest() {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", p.Key, p.Value)
	}
	return s + "}"
}
