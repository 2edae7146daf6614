// Package postcard lays a photo, a map of where it was taken, and its metadata out on a
// single 800×600 canvas.
package postcard

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"k8s.io/klog/v2"

	"github.com/tstromberg/photomapo/pkg/maps"
	"github.com/tstromberg/photomapo/pkg/metadata"
)

// Layout, in canvas pixels.
const (
	Width  = 800
	Height = 600

	PhotoMaxWidth  = 400
	PhotoMaxHeight = 300

	MapSize    = 300
	LineHeight = 20
)

// Defaults used when the metadata carries no hints.
const (
	DefaultStyle = "streets"
	DefaultZoom  = 14
)

// Placeholder captions for the map slot.
const (
	NoGPSText          = "No GPS for map"
	MapUnavailableText = "Map unavailable"
)

var (
	PhotoOrigin = image.Pt(50, 50)
	MapOrigin   = image.Pt(500, 50)
	TextOrigin  = image.Pt(50, 370)

	Background       = color.White
	TextColor        = color.Black
	PlaceholderColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// hidden keys are never printed in the text block.
var hidden = map[string]bool{
	metadata.GPSInfo:     true,
	metadata.MapboxStyle: true,
	metadata.MapZoom:     true,
	metadata.MapImage:    true,
}

// ErrNoProvider is returned when a map is needed and no Provider is configured.
var ErrNoProvider = errors.New("no map provider configured")

// Composer renders postcards.
type Composer struct {
	// Maps renders the map for photos with coordinates.
	Maps maps.Provider
	// MapFallback draws MapUnavailableText instead of failing when the map cannot be fetched.
	MapFallback bool
	// Face is the text face; nil uses basicfont.Face7x13.
	Face font.Face
}

// Compose renders the postcard for the photo at photoPath described by md.
func (c *Composer) Compose(ctx context.Context, photoPath string, md *metadata.Metadata) (*image.RGBA, error) {
	img, _, err := c.compose(ctx, photoPath, md)
	return img, err
}

// Report describes how a postcard was drawn.
type Report struct {
	// MapFallback is set when MapUnavailableText was drawn because the map could not be fetched.
	MapFallback bool
}

func (c *Composer) compose(ctx context.Context, photoPath string, md *metadata.Metadata) (*image.RGBA, Report, error) {
	var r Report
	if md == nil {
		md = metadata.New()
	}

	photo, err := imgio.Open(photoPath)
	if err != nil {
		return nil, r, fmt.Errorf("%w %s: %w", metadata.ErrDecode, photoPath, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	thumb := Fit(photo, PhotoMaxWidth, PhotoMaxHeight)
	paste(canvas, thumb, PhotoOrigin)
	klog.V(1).Infof("%s: %v photo pasted as %v", photoPath, photo.Bounds().Size(), thumb.Bounds().Size())

	r.MapFallback, err = c.drawMap(ctx, canvas, md)
	if err != nil {
		return nil, r, err
	}

	for i, line := range Lines(md) {
		c.text(canvas, TextOrigin.Add(image.Pt(0, i*LineHeight)), line, TextColor)
	}
	return canvas, r, nil
}

// drawMap pastes the map or a placeholder. It reports whether MapUnavailableText was drawn.
func (c *Composer) drawMap(ctx context.Context, canvas *image.RGBA, md *metadata.Metadata) (bool, error) {
	lat, lon, ok := md.Coordinates()
	if !ok {
		if md.HasCoordinates() {
			klog.V(1).Infof("non-numeric coordinates %v,%v, skipping map", md.StringValue(metadata.Latitude), md.StringValue(metadata.Longitude))
		}
		c.text(canvas, MapOrigin, NoGPSText, PlaceholderColor)
		return false, nil
	}

	if m, ok := md.Image(metadata.MapImage); ok {
		paste(canvas, m, MapOrigin)
		return false, nil
	}

	m, err := c.fetchMap(ctx, lat, lon, md)
	if err != nil {
		if !c.MapFallback {
			return false, fmt.Errorf("map: %w", err)
		}
		klog.Warningf("map for %.5f,%.5f unavailable: %v", lat, lon, err)
		c.text(canvas, MapOrigin, MapUnavailableText, PlaceholderColor)
		return true, nil
	}
	paste(canvas, m, MapOrigin)
	return false, nil
}

func (c *Composer) fetchMap(ctx context.Context, lat, lon float64, md *metadata.Metadata) (image.Image, error) {
	if c.Maps == nil {
		return nil, ErrNoProvider
	}

	style := md.StringValue(metadata.MapboxStyle)
	if style == "" {
		style = DefaultStyle
	}
	zoom := md.IntValue(metadata.MapZoom, DefaultZoom)

	klog.V(1).Infof("fetching %s map at zoom %d for %.5f,%.5f", style, zoom, lat, lon)
	return c.Maps.FetchMap(ctx, lat, lon, style, zoom, image.Pt(MapSize, MapSize))
}

// Lines returns the text block, one "key: value" line per printable entry in md's order.
func Lines(md *metadata.Metadata) []string {
	if md == nil {
		return nil
	}

	var lines []string
	for p := md.Oldest(); p != nil; p = p.Next() {
		if hidden[p.Key] {
			continue
		}
		if _, ok := p.Value.(image.Image); ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v", p.Key, p.Value))
	}
	return lines
}

// Fit scales img down to fit within maxW×maxH, keeping its aspect ratio. Images that
// already fit are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := min(maxW, max(1, int(math.Round(float64(w)*scale))))
	nh := min(maxH, max(1, int(math.Round(float64(h)*scale))))
	return transform.Resize(img, nw, nh, transform.Lanczos)
}

func paste(dst *image.RGBA, src image.Image, at image.Point) {
	r := image.Rectangle{Min: at, Max: at.Add(src.Bounds().Size())}
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}

// text draws s with its top-left corner at pt.
func (c *Composer) text(dst *image.RGBA, pt image.Point, s string, col color.Color) {
	face := c.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(pt.X, pt.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}
