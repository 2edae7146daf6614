package maps

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// DefaultStyle is the Mapbox style used for unknown style names.
const DefaultStyle = "mapbox/streets-v12"

const mapboxURL = "https://api.mapbox.com"

// Styles maps friendly style names to Mapbox style ids.
var Styles = map[string]string{
	"Streets":           "mapbox/streets-v12",
	"Outdoors":          "mapbox/outdoors-v12",
	"Light":             "mapbox/light-v11",
	"Dark":              "mapbox/dark-v11",
	"Satellite":         "mapbox/satellite-v9",
	"Satellite Streets": "mapbox/satellite-streets-v12",
}

// StyleNames returns the friendly style names, sorted.
func StyleNames() []string {
	names := make([]string, 0, len(Styles))
	for n := range Styles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveStyle turns a friendly name ("streets", "Satellite Streets") or a full style id
// ("mapbox/dark-v11", "someone/abc123") into a Mapbox style id.
func ResolveStyle(style string) string {
	s := strings.TrimSpace(style)
	if strings.Contains(s, "/") {
		return s
	}
	norm := strings.ReplaceAll(s, "-", " ")
	for name, id := range Styles {
		if strings.EqualFold(name, norm) {
			return id
		}
	}
	if s != "" {
		klog.V(1).Infof("unknown map style %q, using %s", style, DefaultStyle)
	}
	return DefaultStyle
}

// Mapbox renders maps with the Mapbox Static Images API.
type Mapbox struct {
	Token   string
	BaseURL string
	Client  *http.Client
	Retry   *RetryConfig
}

// URL returns the static image URL for the given view.
func (m *Mapbox) URL(lat, lon float64, style string, zoom int, size image.Point) string {
	base := m.BaseURL
	if base == "" {
		base = mapboxURL
	}
	return fmt.Sprintf("%s/styles/v1/%s/static/%s,%s,%d/%dx%d?access_token=%s",
		strings.TrimRight(base, "/"),
		ResolveStyle(style),
		strconv.FormatFloat(lon, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		zoom, size.X, size.Y,
		url.QueryEscape(m.Token))
}

// FetchMap downloads a size.X×size.Y map centred on (lat, lon).
func (m *Mapbox) FetchMap(ctx context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error) {
	if m.Token == "" {
		return nil, ErrNoToken
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid map size %v", size)
	}

	img, err := fetchImage(ctx, m.Client, m.URL(lat, lon, style, zoom, size), "", retryConfig(m.Retry))
	if err != nil {
		return nil, fmt.Errorf("mapbox: %w", err)
	}
	return img, nil
}
