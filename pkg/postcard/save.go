package postcard

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"k8s.io/klog/v2"

	"github.com/tstromberg/photomapo/pkg/metadata"
)

// DefaultQuality is the JPEG quality used when none is given.
const DefaultQuality = 90

// Encoder returns the bild encoder for a file extension such as ".jpg".
func Encoder(ext string, quality int) (imgio.Encoder, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(quality), nil
	case ".png":
		return imgio.PNGEncoder(), nil
	case ".bmp":
		return imgio.BMPEncoder(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", ext)
	}
}

// Save writes img to path in the format named by its extension.
func Save(img image.Image, path string, quality int) error {
	enc, err := Encoder(filepath.Ext(path), quality)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imgio.Save(path, img, enc); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// WritePNG encodes img as PNG to w.
func WritePNG(w io.Writer, img image.Image) error {
	return imgio.PNGEncoder()(w, img)
}

// Create composes the postcard for photoPath and saves it to outPath.
func (c *Composer) Create(ctx context.Context, photoPath string, md *metadata.Metadata, outPath string, quality int) (Report, error) {
	img, r, err := c.compose(ctx, photoPath, md)
	if err != nil {
		return r, err
	}
	if err := Save(img, outPath, quality); err != nil {
		return r, err
	}
	klog.Infof("wrote %s", outPath)
	return r, nil
}
