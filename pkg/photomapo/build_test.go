package photomapo

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/photomapo/internal/testimg"
	"github.com/tstromberg/photomapo/pkg/maps"
	"github.com/tstromberg/photomapo/pkg/metadata"
	"github.com/tstromberg/photomapo/pkg/postcard"
)

type countingMaps struct {
	calls int
	style string
	zoom  int
}

func (m *countingMaps) FetchMap(_ context.Context, _, _ float64, style string, zoom int, size image.Point) (image.Image, error) {
	m.calls++
	m.style = style
	m.zoom = zoom
	return testimg.Solid(size.X, size.Y, color.RGBA{G: 180, A: 255}), nil
}

type fixedCaption string

func (f fixedCaption) Caption(context.Context, image.Image) (string, error) {
	if f == "" {
		return "", errors.New("no idea")
	}
	return string(f), nil
}

// library writes a small photo tree and returns its root.
func library(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "paris"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".trash"), 0o755))

	img := testimg.Solid(64, 48, color.RGBA{R: 200, A: 255})
	withGPS := testimg.JPEG(t, img, testimg.TIFF(testimg.Camera("Pixel 7", "2024:05:01 10:00:00"), testimg.Paris.Entries()))

	testimg.Write(t, filepath.Join(root, "paris", "tower.jpg"), withGPS)
	testimg.Write(t, filepath.Join(root, "plain.png"), testimg.PNG(t, img))
	testimg.Write(t, filepath.Join(root, ".trash", "old.jpg"), withGPS)
	testimg.Write(t, filepath.Join(root, "notes.txt"), []byte("hello"))
	testimg.Write(t, filepath.Join(root, "broken.jpg"), []byte("not a jpeg"))
	return root
}

func testBuilder(t *testing.T, c *Config, mp maps.Provider, capt fixedCaption) *Builder {
	t.Helper()
	comp := &postcard.Composer{Maps: mp, MapFallback: true}
	var b *Builder
	if capt != "" {
		b = NewBuilderWith(c, metadata.NewExtractor(nil), comp, capt)
	} else {
		b = NewBuilderWith(c, metadata.NewExtractor(nil), comp, nil)
	}
	return b
}

func TestCollect(t *testing.T) {
	root := library(t)
	out := t.TempDir()
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "png", Style: "dark", Zoom: 12, Notes: []string{"Trip", " "}}
	mp := &countingMaps{}

	col, err := testBuilder(t, c, mp, "A fine day in Paris").Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, col.Photos, 2)
	assert.Contains(t, col.Failed, filepath.Join(root, "broken.jpg"))
	assert.ErrorIs(t, col.Failed[filepath.Join(root, "broken.jpg")], metadata.ErrDecode)

	tower := col.Photos[0]
	assert.Equal(t, filepath.Join("paris", "tower.jpg"), tower.RelPath)
	assert.Equal(t, filepath.Join(out, "paris", "tower.postcard.png"), tower.OutPath)
	assert.True(t, tower.HasGPS)
	assert.InDelta(t, 48.8557, tower.Lat, 1e-3)
	assert.Equal(t, "Pixel 7", tower.Model)
	assert.Equal(t, "A fine day in Paris", tower.Caption)
	assert.Equal(t, []string{
		metadata.Model, metadata.DateTime, metadata.GPSInfo, metadata.Latitude, metadata.Longitude,
		metadata.Caption, metadata.MapboxStyle, metadata.MapZoom, metadata.Note,
	}, tower.Metadata.Keys())

	plain := col.Photos[1]
	assert.False(t, plain.HasGPS)

	assert.Equal(t, 1, mp.calls)
	assert.Equal(t, "dark", mp.style)
	assert.Equal(t, 12, mp.zoom)

	for _, p := range col.Photos {
		f, err := os.Open(p.OutPath)
		require.NoError(t, err)
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, postcard.Width, cfg.Width)
	}
	assert.Equal(t, 2, col.Built())
}

func TestCollectSkipsFresh(t *testing.T) {
	root := library(t)
	out := t.TempDir()
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "jpg", Quality: 80}
	mp := &countingMaps{}
	b := testBuilder(t, c, mp, "")

	_, err := b.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, mp.calls)

	col, err := b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, col.Built())
	assert.Equal(t, 1, mp.calls, "fresh postcards are not rebuilt")
	for _, p := range col.Photos {
		assert.True(t, p.Fresh)
		assert.NotNil(t, p.Metadata)
	}

	// touching the source makes it stale again
	src := filepath.Join(root, "paris", "tower.jpg")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, later, later))

	col, err = b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, col.Built())
	assert.Equal(t, 2, mp.calls)
}

type flakyMaps struct {
	countingMaps
	down bool
}

func (m *flakyMaps) FetchMap(ctx context.Context, lat, lon float64, style string, zoom int, size image.Point) (image.Image, error) {
	if m.down {
		m.calls++
		return nil, errors.New("network down")
	}
	return m.countingMaps.FetchMap(ctx, lat, lon, style, zoom, size)
}

func TestCollectRetriesMapFallback(t *testing.T) {
	root := library(t)
	out := t.TempDir()
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "png"}
	mp := &flakyMaps{down: true}
	b := testBuilder(t, c, mp, "")

	col, err := b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, col.Built())
	assert.Equal(t, 1, mp.calls)

	st, err := readStamp(stampPath(filepath.Join(out, "paris", "tower.postcard.png")))
	require.NoError(t, err)
	assert.True(t, st.MapFallback)

	// the map is back: only the postcard drawn without one is rebuilt
	mp.down = false
	col, err = b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, col.Built())
	assert.Equal(t, 2, mp.calls)
	for _, p := range col.Photos {
		assert.Equal(t, p.RelPath != filepath.Join("paris", "tower.jpg"), p.Fresh, p.RelPath)
	}

	col, err = b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, col.Built())
	assert.Equal(t, 2, mp.calls)
}

func TestCollectRebuildsOnNewSettings(t *testing.T) {
	root := library(t)
	out := t.TempDir()
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "jpg", Quality: 80}
	mp := &countingMaps{}
	b := testBuilder(t, c, mp, "")

	_, err := b.Collect(context.Background())
	require.NoError(t, err)

	for _, change := range []struct {
		name string
		fn   func()
	}{
		{"note", func() { c.Notes = []string{"Lunch"} }},
		{"style", func() { c.Style = "satellite" }},
		{"zoom", func() { c.Zoom = 9 }},
		{"quality", func() { c.Quality = 60 }},
	} {
		change.fn()
		col, err := b.Collect(context.Background())
		require.NoError(t, err, change.name)
		assert.Equal(t, 2, col.Built(), change.name)

		col, err = b.Collect(context.Background())
		require.NoError(t, err, change.name)
		assert.Equal(t, 0, col.Built(), change.name)
	}
	assert.Equal(t, "satellite", mp.style)
	assert.Equal(t, 9, mp.zoom)
}

func TestCollectKeepsCaptionOfFreshPostcards(t *testing.T) {
	root := library(t)
	out := t.TempDir()
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "png"}

	// postcards built without captions are rebuilt once captions are wanted
	_, err := testBuilder(t, c, &countingMaps{}, "").Collect(context.Background())
	require.NoError(t, err)

	b := testBuilder(t, c, &countingMaps{}, "Bonjour")
	col, err := b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, col.Built())

	col, err = b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, col.Built())
	for _, p := range col.Photos {
		assert.Equal(t, "Bonjour", p.Caption, p.RelPath)
		assert.Equal(t, "Bonjour", p.Metadata.StringValue(metadata.Caption))
	}
}

func TestStampMatches(t *testing.T) {
	want := &stamp{Notes: []string{"a"}, Style: "dark", Zoom: 12, Quality: 90, Captions: true}

	assert.True(t, (&stamp{Notes: []string{"a"}, Style: "dark", Zoom: 12, Quality: 90, Captions: true, Caption: "Hi"}).matches(want))
	assert.False(t, (&stamp{Notes: []string{"a"}, Style: "dark", Zoom: 12, Quality: 90, Captions: true}).matches(want), "caption missing")
	assert.False(t, (&stamp{Notes: []string{"a"}, Style: "dark", Zoom: 12, Quality: 90, Captions: true, Caption: "Hi", MapFallback: true}).matches(want))
	assert.False(t, (&stamp{Style: "dark", Zoom: 12, Quality: 90, Captions: true, Caption: "Hi"}).matches(want))

	assert.True(t, (&stamp{}).matches(&stamp{Notes: []string{}}))
	assert.Equal(t, filepath.Join("a", ".b.postcard.jpg.json"), stampPath(filepath.Join("a", "b.postcard.jpg")))
}

func TestCollectCopiesOriginals(t *testing.T) {
	root := library(t)
	out := t.TempDir()
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "jpg", CopyOriginals: true}

	col, err := testBuilder(t, c, &countingMaps{}, "").Collect(context.Background())
	require.NoError(t, err)

	for _, p := range col.Photos {
		assert.Equal(t, filepath.Join(out, OriginalsDir, p.RelPath), p.OriginalPath)
		want, err := os.ReadFile(p.InPath)
		require.NoError(t, err)
		got, err := os.ReadFile(p.OriginalPath)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCollectCanceled(t *testing.T) {
	c := &Config{InDirs: []string{library(t)}, OutDir: t.TempDir(), Format: "jpg"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testBuilder(t, c, &countingMaps{}, "").Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCaptionFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	path := testimg.Write(t, filepath.Join(root, "a.png"), testimg.PNG(t, testimg.Solid(8, 8, color.White)))
	c := &Config{OutDir: t.TempDir(), Format: "png"}

	b := NewBuilderWith(c, metadata.NewExtractor(nil), &postcard.Composer{}, fixedCaption(""))
	p := &Photo{InPath: path, RelPath: "a.png"}
	require.NoError(t, b.Build(context.Background(), p))
	assert.Empty(t, p.Caption)
	assert.FileExists(t, p.OutPath)
}

func TestAnnotate(t *testing.T) {
	md := metadata.New()
	md.Set(metadata.Model, "X")
	Annotate(md, []string{"first", "", "second"}, "outdoors", 99)

	assert.Equal(t, []string{metadata.Model, metadata.MapboxStyle, metadata.MapZoom, "Note 1", "Note 2"}, md.Keys())
	assert.Equal(t, MaxZoom, md.IntValue(metadata.MapZoom, 0))

	md = metadata.New()
	Annotate(md, nil, "", 0)
	assert.Equal(t, 0, md.Len())
}

func TestRun(t *testing.T) {
	root := library(t)
	out := filepath.Join(root, "out")
	c := &Config{InDirs: []string{root}, OutDir: out, Format: "jpg", Title: "Holiday"}

	col, err := testBuilder(t, c, &countingMaps{}, "").Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, col.Photos, 2)
	assert.FileExists(t, filepath.Join(out, IndexFile))

	// second run must not pick up its own output
	col, err = testBuilder(t, c, &countingMaps{}, "").Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, col.Photos, 2)
}

func TestNewBuilder(t *testing.T) {
	c, err := LoadConfig(NewViper(), "")
	require.NoError(t, err)
	c.Maps.Provider = "osm"

	b, err := NewBuilder(context.Background(), c)
	require.NoError(t, err)
	assert.NotNil(t, b.Extractor())
	assert.IsType(t, &maps.OSM{}, b.Composer().Maps)
	assert.True(t, b.Composer().MapFallback)
	assert.NoError(t, b.Close())

	c.Caption = true
	c.GeminiAPIKey = ""
	_, err = NewBuilder(context.Background(), c)
	assert.Error(t, err)
}
