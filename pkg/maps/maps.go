// Package maps fetches static map images centred on a coordinate.
package maps

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Provider renders a static map image centred on (lat, lon).
type Provider interface {
	FetchMap(ctx context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error)

// FetchMap calls f.
func (f ProviderFunc) FetchMap(ctx context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error) {
	return f(ctx, lat, lon, style, zoom, size)
}

// ErrNoToken is returned by Mapbox when no access token is configured.
var ErrNoToken = errors.New("mapbox access token is not set")

// StatusError is a non-200 response from a map server.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether the request is worth repeating.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Config selects and configures a Provider.
type Config struct {
	// Provider is "mapbox" or "osm". Empty picks mapbox when a token is set, osm otherwise.
	Provider    string
	MapboxToken string
	// BaseURL overrides the Mapbox API endpoint.
	BaseURL string
	// TileURL is the OSM tile template, containing {z}, {x} and {y}.
	TileURL   string
	UserAgent string
	Timeout   time.Duration
	// Concurrency bounds parallel tile downloads.
	Concurrency int
}

// New returns the Provider described by c.
func New(c Config) (Provider, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	name := strings.ToLower(strings.TrimSpace(c.Provider))
	if name == "" {
		name = "osm"
		if c.MapboxToken != "" {
			name = "mapbox"
		}
	}
	klog.V(1).Infof("map provider: %s", name)

	switch name {
	case "mapbox":
		return &Mapbox{
			Token:   c.MapboxToken,
			BaseURL: c.BaseURL,
			Client:  client,
		}, nil
	case "osm", "openstreetmap":
		return &OSM{
			TileURL:     c.TileURL,
			UserAgent:   c.UserAgent,
			Client:      client,
			Concurrency: c.Concurrency,
		}, nil
	default:
		return nil, fmt.Errorf("unknown map provider %q", c.Provider)
	}
}
