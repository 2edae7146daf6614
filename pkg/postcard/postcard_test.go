package postcard

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/photomapo/internal/testimg"
	"github.com/tstromberg/photomapo/pkg/maps"
	"github.com/tstromberg/photomapo/pkg/metadata"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 200, A: 255}
)

type call struct {
	lat, lon float64
	style    string
	zoom     int
	size     image.Point
}

// recorder is a map provider returning a solid green map and remembering its calls.
type recorder struct {
	calls []call
	err   error
}

func (r *recorder) FetchMap(_ context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error) {
	r.calls = append(r.calls, call{lat, lon, style, zoom, size})
	if r.err != nil {
		return nil, r.err
	}
	return testimg.Solid(size.X, size.Y, green), nil
}

func photo(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	return testimg.Write(t, filepath.Join(t.TempDir(), "photo.png"), testimg.PNG(t, testimg.Solid(w, h, c)))
}

func located() *metadata.Metadata {
	md := metadata.New()
	md.Set(metadata.Model, "Pixel 7")
	md.Set(metadata.DateTime, "2024:05:01 10:00:00")
	md.Set(metadata.GPSInfo, metadata.NewGPSBlock())
	md.Set(metadata.Latitude, 48.8557)
	md.Set(metadata.Longitude, 2.3522)
	return md
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

// inked counts non-white pixels in r.
func inked(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if rgba(img.At(x, y)) != rgba(color.White) {
				n++
			}
		}
	}
	return n
}

func hasColor(img *image.RGBA, r image.Rectangle, want color.RGBA) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if rgba(img.At(x, y)) == want {
				return true
			}
		}
	}
	return false
}

func mapRect() image.Rectangle {
	return image.Rectangle{Min: MapOrigin, Max: MapOrigin.Add(image.Pt(MapSize, MapSize))}
}

func TestComposeWithSuppliedMap(t *testing.T) {
	md := located()
	md.Set(metadata.MapboxStyle, "dark")
	md.Set(metadata.MapZoom, 12)
	md.Set(metadata.MapImage, testimg.Solid(MapSize, MapSize, green))

	rec := &recorder{}
	c := &Composer{Maps: rec}
	img, err := c.Compose(context.Background(), photo(t, 800, 600, red), md)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, Width, Height), img.Bounds())
	assert.Empty(t, rec.calls, "supplied map must not be fetched")

	r := mapRect()
	for _, p := range []image.Point{r.Min, r.Max.Sub(image.Pt(1, 1)), image.Pt(650, 200)} {
		assert.Equal(t, green, rgba(img.At(p.X, p.Y)), "map pixel %v", p)
	}
}

func TestComposeFetchesMap(t *testing.T) {
	md := located()
	md.Set(metadata.MapboxStyle, "Satellite")
	md.Set(metadata.MapZoom, 9)

	rec := &recorder{}
	img, err := (&Composer{Maps: rec}).Compose(context.Background(), photo(t, 40, 30, red), md)
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, call{48.8557, 2.3522, "Satellite", 9, image.Pt(MapSize, MapSize)}, rec.calls[0])
	assert.Equal(t, green, rgba(img.At(650, 200)))
}

func TestComposeMapDefaults(t *testing.T) {
	rec := &recorder{}
	_, err := (&Composer{Maps: rec}).Compose(context.Background(), photo(t, 40, 30, red), located())
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, DefaultStyle, rec.calls[0].style)
	assert.Equal(t, DefaultZoom, rec.calls[0].zoom)
}

func TestComposeWithoutCoordinates(t *testing.T) {
	md := metadata.New()
	md.Set(metadata.Model, "X100V")

	rec := &recorder{}
	img, err := (&Composer{Maps: rec}).Compose(context.Background(), photo(t, 40, 30, red), md)
	require.NoError(t, err)

	assert.Empty(t, rec.calls)
	assert.True(t, hasColor(img, image.Rect(500, 50, 700, 70), PlaceholderColor), "placeholder text")
	assert.Zero(t, inked(img, image.Rect(500, 80, 800, 350)), "no map pasted")
	assert.Equal(t, rgba(color.White), rgba(img.At(650, 200)))
}

func TestComposeTextBlock(t *testing.T) {
	md := located()
	md.Set(metadata.MapboxStyle, "dark")
	md.Set(metadata.MapZoom, 14)

	img, err := (&Composer{Maps: &recorder{}}).Compose(context.Background(), photo(t, 40, 30, red), md)
	require.NoError(t, err)

	// Model, DateTime, Latitude, Longitude
	for i := 0; i < 4; i++ {
		y := TextOrigin.Y + i*LineHeight
		assert.NotZero(t, inked(img, image.Rect(TextOrigin.X, y, 450, y+LineHeight)), "line %d", i)
	}
	y := TextOrigin.Y + 4*LineHeight
	assert.Zero(t, inked(img, image.Rect(0, y, Width, Height)), "nothing below the last line")
}

func TestLines(t *testing.T) {
	md := located()
	md.Set(metadata.MapboxStyle, "dark")
	md.Set(metadata.MapZoom, 14)
	md.Set(metadata.MapImage, testimg.Solid(1, 1, green))
	md.Set(metadata.Note, "Lunch by the river")

	assert.Equal(t, []string{
		"Model: Pixel 7",
		"DateTime: 2024:05:01 10:00:00",
		"Latitude: 48.8557",
		"Longitude: 2.3522",
		"Note: Lunch by the river",
	}, Lines(md))

	assert.Empty(t, Lines(metadata.New()))
	assert.Empty(t, Lines(nil))
}

func TestComposePhotoPlacement(t *testing.T) {
	img, err := (&Composer{}).Compose(context.Background(), photo(t, 800, 600, red), nil)
	require.NoError(t, err)

	got := rgba(img.At(250, 200))
	assert.InDelta(t, 255, int(got.R), 2)
	assert.InDelta(t, 0, int(got.G), 2)
	assert.Equal(t, rgba(color.White), rgba(img.At(49, 49)))
	assert.Equal(t, rgba(color.White), rgba(img.At(455, 200)), "photo is at most 400px wide")
	assert.Equal(t, rgba(color.White), rgba(img.At(250, 355)), "photo is at most 300px high")
}

func TestComposeDoesNotUpscale(t *testing.T) {
	img, err := (&Composer{}).Compose(context.Background(), photo(t, 100, 50, red), nil)
	require.NoError(t, err)

	assert.Equal(t, red, rgba(img.At(50, 50)))
	assert.Equal(t, red, rgba(img.At(149, 99)))
	assert.Equal(t, rgba(color.White), rgba(img.At(150, 60)))
	assert.Equal(t, rgba(color.White), rgba(img.At(60, 100)))
}

func TestFit(t *testing.T) {
	tests := []struct {
		in   image.Point
		want image.Point
	}{
		{image.Pt(800, 600), image.Pt(400, 300)},
		{image.Pt(1600, 1200), image.Pt(400, 300)},
		{image.Pt(900, 1200), image.Pt(225, 300)},
		{image.Pt(1000, 100), image.Pt(400, 40)},
		{image.Pt(400, 300), image.Pt(400, 300)},
		{image.Pt(10, 10), image.Pt(10, 10)},
		{image.Pt(5000, 1), image.Pt(400, 1)},
	}
	for _, tc := range tests {
		got := Fit(image.NewRGBA(image.Rectangle{Max: tc.in}), PhotoMaxWidth, PhotoMaxHeight)
		assert.Equal(t, tc.want, got.Bounds().Size(), "Fit(%v)", tc.in)
	}
}

func TestComposeUndecodable(t *testing.T) {
	path := testimg.Write(t, filepath.Join(t.TempDir(), "junk.jpg"), []byte("nope"))
	_, err := (&Composer{}).Compose(context.Background(), path, nil)
	assert.ErrorIs(t, err, metadata.ErrDecode)
}

func TestComposeMapFailure(t *testing.T) {
	boom := &maps.StatusError{Code: 503, URL: "https://maps.test/x"}
	path := photo(t, 40, 30, red)

	_, err := (&Composer{Maps: &recorder{err: boom}}).Compose(context.Background(), path, located())
	require.Error(t, err)
	var se *maps.StatusError
	assert.True(t, errors.As(err, &se))

	img, err := (&Composer{Maps: &recorder{err: boom}, MapFallback: true}).Compose(context.Background(), path, located())
	require.NoError(t, err)
	assert.True(t, hasColor(img, image.Rect(500, 50, 700, 70), PlaceholderColor))
	assert.Zero(t, inked(img, image.Rect(500, 80, 800, 350)))
}

func TestComposeNoProvider(t *testing.T) {
	_, err := (&Composer{}).Compose(context.Background(), photo(t, 40, 30, red), located())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	src := photo(t, 40, 30, red)

	for _, name := range []string{"card.jpg", "card.jpeg", "card.png", "nested/card.bmp"} {
		out := filepath.Join(dir, name)
		r, err := (&Composer{}).Create(context.Background(), src, nil, out, 85)
		require.NoError(t, err, name)
		assert.False(t, r.MapFallback)

		f, err := os.Open(out)
		require.NoError(t, err)
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		require.NoError(t, err, name)
		assert.Equal(t, Width, cfg.Width)
		assert.Equal(t, Height, cfg.Height)
	}

	_, err := (&Composer{}).Create(context.Background(), src, nil, filepath.Join(dir, "card.tiff"), 85)
	assert.Error(t, err)
}

func TestCreateReportsMapFallback(t *testing.T) {
	src := photo(t, 40, 30, red)
	out := filepath.Join(t.TempDir(), "card.png")

	c := &Composer{Maps: &recorder{err: errors.New("network down")}, MapFallback: true}
	r, err := c.Create(context.Background(), src, located(), out, 85)
	require.NoError(t, err)
	assert.True(t, r.MapFallback)
	assert.FileExists(t, out)

	r, err = (&Composer{Maps: &recorder{}}).Create(context.Background(), src, located(), out, 85)
	require.NoError(t, err)
	assert.False(t, r.MapFallback)
}

func TestComposeNonNumericCoordinates(t *testing.T) {
	rec := &recorder{}
	md := metadata.New()
	md.Set(metadata.Latitude, "north-ish")
	md.Set(metadata.Longitude, "east-ish")

	img, err := (&Composer{Maps: rec}).Compose(context.Background(), photo(t, 40, 30, red), md)
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
	assert.True(t, hasColor(img, image.Rect(500, 50, 700, 70), PlaceholderColor))
}
