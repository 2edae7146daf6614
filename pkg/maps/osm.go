package maps

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const (
	// TileSize is the edge length of a slippy-map tile.
	TileSize = 256

	// DefaultTileURL is the OpenStreetMap standard tile layer.
	DefaultTileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

	// DefaultUserAgent identifies us to tile servers.
	DefaultUserAgent = "photomapo/1.0 (+https://github.com/tstromberg/photomapo)"

	maxLatitude = 85.0511287798
	maxOSMZoom  = 19
)

var (
	markerFill   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	markerStroke = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	oceanColor   = color.RGBA{R: 170, G: 211, B: 223, A: 255}
)

// OSM renders maps by stitching slippy-map tiles. Style is ignored.
type OSM struct {
	TileURL     string
	UserAgent   string
	Client      *http.Client
	Retry       *RetryConfig
	Concurrency int
}

// tile is one tile and where its top-left corner lands on the output.
type tile struct {
	x, y int
	at   image.Point
	img  image.Image
}

// FetchMap stitches the tiles around (lat, lon) into a size.X×size.Y image and marks the centre.
func (o *OSM) FetchMap(ctx context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid map size %v", size)
	}
	zoom = min(max(zoom, 0), maxOSMZoom)
	if style != "" {
		klog.V(2).Infof("osm: ignoring style %q", style)
	}

	cx, cy := worldPixel(lat, lon, zoom)
	origin := image.Pt(int(math.Floor(cx))-size.X/2, int(math.Floor(cy))-size.Y/2)
	tiles := tilesFor(origin, size, zoom)

	limit := o.Concurrency
	if limit <= 0 {
		limit = 4
	}
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	rc := retryConfig(o.Retry)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range tiles {
		t := &tiles[i]
		g.Go(func() error {
			img, err := fetchImage(gctx, o.Client, o.tileURL(zoom, t.x, t.y), ua, rc)
			if err != nil {
				return fmt.Errorf("tile %d/%d/%d: %w", zoom, t.x, t.y, err)
			}
			t.img = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("osm: %w", err)
	}

	out := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(out, out.Bounds(), image.NewUniform(oceanColor), image.Point{}, draw.Src)
	for _, t := range tiles {
		r := image.Rectangle{Min: t.at, Max: t.at.Add(image.Pt(TileSize, TileSize))}
		draw.Draw(out, r, t.img, t.img.Bounds().Min, draw.Src)
	}

	drawMarker(out, image.Pt(size.X/2, size.Y/2), 6)
	klog.V(1).Infof("osm: stitched %d tiles at zoom %d for %.5f,%.5f", len(tiles), zoom, lat, lon)
	return out, nil
}

func (o *OSM) tileURL(z, x, y int) string {
	tmpl := o.TileURL
	if tmpl == "" {
		tmpl = DefaultTileURL
	}
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(tmpl)
}

// worldPixel projects (lat, lon) to Web Mercator pixel coordinates at zoom.
func worldPixel(lat, lon float64, zoom int) (float64, float64) {
	lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
	scale := float64(TileSize) * math.Exp2(float64(zoom))
	rad := lat * math.Pi / 180

	x := (lon + 180) / 360 * scale
	y := (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * scale
	return x, y
}

// tilesFor lists the tiles covering the size-sized window whose top-left world pixel is
// origin. Columns wrap around the antimeridian; rows outside the world are left out.
func tilesFor(origin image.Point, size image.Point, zoom int) []tile {
	n := 1 << zoom
	x0 := floorDiv(origin.X, TileSize)
	x1 := floorDiv(origin.X+size.X-1, TileSize)
	y0 := floorDiv(origin.Y, TileSize)
	y1 := floorDiv(origin.Y+size.Y-1, TileSize)

	var ts []tile
	for ty := y0; ty <= y1; ty++ {
		if ty < 0 || ty >= n {
			continue
		}
		for tx := x0; tx <= x1; tx++ {
			ts = append(ts, tile{
				x:  ((tx % n) + n) % n,
				y:  ty,
				at: image.Pt(tx*TileSize-origin.X, ty*TileSize-origin.Y),
			})
		}
	}
	return ts
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// drawMarker draws a filled dot with a white ring at c.
func drawMarker(img *image.RGBA, c image.Point, r int) {
	outer := (r + 2) * (r + 2)
	inner := r * r
	for dy := -r - 2; dy <= r+2; dy++ {
		for dx := -r - 2; dx <= r+2; dx++ {
			d := dx*dx + dy*dy
			switch {
			case d <= inner:
				img.Set(c.X+dx, c.Y+dy, markerFill)
			case d <= outer:
				img.Set(c.X+dx, c.Y+dy, markerStroke)
			}
		}
	}
}
