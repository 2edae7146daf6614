// Package caption suggests a one-line postcard caption for a photo using Gemini.
package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// maxEdge bounds the longest side of the image sent to the model.
const maxEdge = 768

const maxLen = 100

// Prompt asks for the caption.
var Prompt = "Write a single short, warm postcard caption (at most 12 words) for this photo. " +
	"If you recognise the place, name it. Do not use hashtags, emoji, or quotation marks. " +
	"Reply with the caption only."

// Captioner describes a photo in one line.
type Captioner interface {
	Caption(ctx context.Context, img image.Image) (string, error)
}

// generator is the part of genai.Models we use.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini captions photos with the Gemini API.
type Gemini struct {
	models generator
	model  string
}

// NewGemini connects to the Gemini API with apiKey.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newGemini(client.Models, model), nil
}

func newGemini(g generator, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{models: g, model: model}
}

// Caption returns a cleaned one-line caption for img.
func (g *Gemini) Caption(ctx context.Context, img image.Image) (string, error) {
	bs, err := encode(img)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(bs, "image/jpeg"),
		genai.NewPartFromText(Prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	klog.V(1).Infof("asking %s for a caption (%d bytes)", g.model, len(bs))
	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", errors.New("empty response")
	}

	c := Clean(resp.Text())
	if c == "" {
		return "", errors.New("model returned no caption")
	}
	klog.V(1).Infof("caption: %q", c)
	return c, nil
}

// encode shrinks img and encodes it as JPEG.
func encode(img image.Image) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image %v", b)
	}
	if w > maxEdge || h > maxEdge {
		if w >= h {
			h = max(1, h*maxEdge/w)
			w = maxEdge
		} else {
			w = max(1, w*maxEdge/h)
			h = maxEdge
		}
		img = transform.Resize(img, w, h, transform.Linear)
	}

	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(85)(&buf, img); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Clean reduces model output to a single tidy line.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "Caption:")
	s = strings.Trim(strings.TrimSpace(s), `"'“”*`)
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxLen {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxLen-1])) + "…"
	}
	return s
}
