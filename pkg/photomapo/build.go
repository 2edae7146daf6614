package photomapo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"

	"github.com/tstromberg/photomapo/pkg/caption"
	"github.com/tstromberg/photomapo/pkg/maps"
	"github.com/tstromberg/photomapo/pkg/metadata"
	"github.com/tstromberg/photomapo/pkg/postcard"
)

// OriginalsDir is where source photos are copied inside the output directory.
const OriginalsDir = "originals"

// Builder builds postcards for a Config.
type Builder struct {
	c         *Config
	extractor *metadata.Extractor
	composer  *postcard.Composer
	captioner caption.Captioner
	closers   []func() error
}

// NewBuilder wires up the EXIF source, map provider and optional captioner described by c.
func NewBuilder(ctx context.Context, c *Config) (*Builder, error) {
	var closers []func() error

	var src metadata.Source
	if c.ExifBackend == "exiftool" {
		et, err := metadata.NewExiftoolSource()
		if err != nil {
			return nil, err
		}
		src = et
		closers = append(closers, et.Close)
	}

	mp, err := maps.New(c.Maps)
	if err != nil {
		return nil, fmt.Errorf("maps: %w", err)
	}

	var capt caption.Captioner
	if c.Caption {
		g, err := caption.NewGemini(ctx, c.GeminiAPIKey, c.CaptionModel)
		if err != nil {
			return nil, fmt.Errorf("caption: %w", err)
		}
		capt = g
	}

	b := NewBuilderWith(c, metadata.NewExtractor(src), &postcard.Composer{Maps: mp, MapFallback: c.MapFallback}, capt)
	b.closers = closers
	return b, nil
}

// NewBuilderWith returns a Builder from already constructed parts. capt may be nil.
func NewBuilderWith(c *Config, ex *metadata.Extractor, comp *postcard.Composer, capt caption.Captioner) *Builder {
	return &Builder{c: c, extractor: ex, composer: comp, captioner: capt}
}

// Extractor returns the builder's metadata extractor.
func (b *Builder) Extractor() *metadata.Extractor { return b.extractor }

// Composer returns the builder's postcard composer.
func (b *Builder) Composer() *postcard.Composer { return b.composer }

// Close releases external helpers such as exiftool.
func (b *Builder) Close() error {
	var errs []error
	for _, fn := range b.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// Collect finds every photo in the configured input directories and builds its postcard.
// Photos that fail are recorded in Failed and do not stop the run.
func (b *Builder) Collect(ctx context.Context) (*Collection, error) {
	col := &Collection{Title: b.c.Title, Failed: map[string]error{}}

	for _, dir := range b.c.InDirs {
		klog.Infof("build: %s -> %s", dir, b.c.OutDir)
		ps, err := Find(dir, b.c.OutDir)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}

		for _, p := range ps {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := b.Build(ctx, p); err != nil {
				klog.Errorf("%s: %v", p.InPath, err)
				col.Failed[p.InPath] = err
				continue
			}
			col.Photos = append(col.Photos, p)
		}
	}

	klog.Infof("built %d of %d postcards (%d failed)", col.Built(), len(col.Photos), len(col.Failed))
	return col, nil
}

// Build extracts metadata for p and renders its postcard unless the existing one is newer
// than the photo and was built from the same settings with a real map.
func (b *Builder) Build(ctx context.Context, p *Photo) error {
	p.OutPath = b.outPath(p)

	md, err := b.extractor.Extract(p.InPath)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	if b.c.CopyOriginals {
		if err := b.copyOriginal(p); err != nil {
			return err
		}
	}

	want := b.stamp()
	if upToDate(p.InPath, p.OutPath) {
		st, err := readStamp(stampPath(p.OutPath))
		switch {
		case err != nil:
			klog.V(1).Infof("%s has no usable stamp, rebuilding: %v", p.OutPath, err)
		case !st.matches(want):
			klog.V(1).Infof("%s is stale, rebuilding", p.OutPath)
		default:
			klog.V(1).Infof("%s is up to date", p.OutPath)
			p.Fresh = true
			if st.Caption != "" {
				md.Set(metadata.Caption, st.Caption)
			}
			Annotate(md, b.c.Notes, b.c.Style, b.c.Zoom)
			p.Notes = b.c.Notes
			p.fill(md)
			return nil
		}
	}

	if b.captioner != nil {
		if c, err := b.caption(ctx, p.InPath); err != nil {
			klog.Warningf("no caption for %s: %v", p.InPath, err)
		} else {
			md.Set(metadata.Caption, c)
		}
	}

	Annotate(md, b.c.Notes, b.c.Style, b.c.Zoom)
	p.Notes = b.c.Notes
	p.fill(md)

	r, err := b.composer.Create(ctx, p.InPath, md, p.OutPath, b.c.Quality)
	if err != nil {
		return fmt.Errorf("postcard: %w", err)
	}

	want.Caption = p.Caption
	want.MapFallback = r.MapFallback
	if err := writeStamp(stampPath(p.OutPath), want); err != nil {
		klog.Warningf("%s will be rebuilt next run: %v", p.OutPath, err)
	}
	return nil
}

// stamp returns the settings a postcard built now depends on.
func (b *Builder) stamp() *stamp {
	return &stamp{
		Notes:    b.c.Notes,
		Style:    b.c.Style,
		Zoom:     b.c.Zoom,
		Quality:  b.c.Quality,
		Captions: b.captioner != nil,
	}
}

func (b *Builder) caption(ctx context.Context, path string) (string, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return b.captioner.Caption(ctx, img)
}

// outPath maps a photo to its postcard: a/b/c.jpg becomes <out>/a/b/c.postcard.<format>.
func (b *Builder) outPath(p *Photo) string {
	noExt := strings.TrimSuffix(p.RelPath, filepath.Ext(p.RelPath))
	return filepath.Join(b.c.OutDir, noExt+".postcard."+b.c.Format)
}

func (b *Builder) copyOriginal(p *Photo) error {
	dst := filepath.Join(b.c.OutDir, OriginalsDir, p.RelPath)
	p.OriginalPath = dst
	if upToDate(p.InPath, dst) {
		return nil
	}
	klog.V(1).Infof("copying %s to %s", p.InPath, dst)
	if err := copy.Copy(p.InPath, dst); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}

// upToDate reports whether dst exists and is not older than src.
func upToDate(src, dst string) bool {
	sst, err := os.Stat(src)
	if err != nil {
		return false
	}
	dst2, err := os.Stat(dst)
	if err != nil {
		return false
	}
	if dst2.Size() == 0 {
		return false
	}
	return !sst.ModTime().After(dst2.ModTime())
}

// Annotate adds map hints and notes to md. Empty style and zero zoom are left unset.
func Annotate(md *metadata.Metadata, notes []string, style string, zoom int) {
	if style != "" {
		md.Set(metadata.MapboxStyle, style)
	}
	if zoom != 0 {
		md.Set(metadata.MapZoom, ClampZoom(zoom))
	}

	var kept []string
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	switch len(kept) {
	case 0:
	case 1:
		md.Set(metadata.Note, kept[0])
	default:
		for i, n := range kept {
			md.Set(fmt.Sprintf("%s %d", metadata.Note, i+1), n)
		}
	}
}

// Run collects every postcard, renders the gallery index and, if pub is set, publishes
// the output directory.
func (b *Builder) Run(ctx context.Context, pub *Publisher) (*Collection, error) {
	col, err := b.Collect(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := Render(b.c, col); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	if pub != nil {
		if err := pub.Publish(ctx, b.c.OutDir, col); err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
	}
	return col, nil
}
