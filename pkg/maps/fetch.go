package maps

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"k8s.io/klog/v2"
)

const maxImageBytes = 16 << 20

// fetchImage downloads and decodes the image at rawURL, retrying transient failures.
func fetchImage(ctx context.Context, client *http.Client, rawURL, userAgent string, rc RetryConfig) (image.Image, error) {
	if client == nil {
		client = http.DefaultClient
	}
	display := redact(rawURL)

	var img image.Image
	err := withRetry(ctx, "GET "+display, rc, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &StatusError{Code: resp.StatusCode, URL: display}
		}

		i, format, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			return fmt.Errorf("decode %s: %w", display, err)
		}
		klog.V(2).Infof("fetched %s (%s, %v)", display, format, i.Bounds().Size())
		img = i
		return nil
	})
	return img, err
}

// redact strips the query string, which may carry an access token.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
