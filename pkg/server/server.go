// Package server exposes metadata extraction and postcard rendering over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/tstromberg/photomapo/pkg/maps"
	"github.com/tstromberg/photomapo/pkg/metadata"
	"github.com/tstromberg/photomapo/pkg/photomapo"
	"github.com/tstromberg/photomapo/pkg/postcard"
)

// MaxUpload bounds the size of an uploaded photo.
const MaxUpload = 32 << 20

// Server serves the photomapo HTTP API.
type Server struct {
	extractor *metadata.Extractor
	composer  *postcard.Composer
	staticDir string
}

// New creates a new server. staticDir, if set, is served at /.
func New(ex *metadata.Extractor, comp *postcard.Composer, staticDir string) *Server {
	return &Server{extractor: ex, composer: comp, staticDir: staticDir}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /metadata", s.MetadataHandler())
	mux.HandleFunc("POST /postcard", s.PostcardHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}
	return logRequests(mux)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		klog.Infof("Listening on %s...", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

// MetadataHandler returns the ordered metadata of an uploaded photo as JSON.
func (s *Server) MetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, cleanup, err := receivePhoto(r)
		if err != nil {
			httpError(w, err)
			return
		}
		defer cleanup()

		md, err := s.extractor.Extract(path)
		if err != nil {
			httpError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(md); err != nil {
			klog.Errorf("encode: %v", err)
		}
	}
}

// PostcardHandler renders an uploaded photo as a PNG postcard. Optional form fields: note
// (repeatable), style, zoom, and a map upload to use instead of fetching one.
func (s *Server) PostcardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, cleanup, err := receivePhoto(r)
		if err != nil {
			httpError(w, err)
			return
		}
		defer cleanup()

		md, err := s.extractor.Extract(path)
		if err != nil {
			httpError(w, err)
			return
		}

		zoom := 0
		if z := r.FormValue("zoom"); z != "" {
			zoom, err = strconv.Atoi(z)
			if err != nil {
				httpError(w, badRequest(fmt.Errorf("zoom: %w", err)))
				return
			}
		}
		photomapo.Annotate(md, r.MultipartForm.Value["note"], r.FormValue("style"), zoom)

		if m, err := formImage(r, "map"); err != nil {
			httpError(w, badRequest(err))
			return
		} else if m != nil {
			md.Set(metadata.MapImage, m)
		}

		img, err := s.composer.Compose(r.Context(), path, md)
		if err != nil {
			httpError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		if err := postcard.WritePNG(w, img); err != nil {
			klog.Errorf("write png: %v", err)
		}
	}
}

type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &statusError{code: http.StatusBadRequest, err: err}
}

func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var se *statusError
	var me *maps.StatusError
	switch {
	case errors.As(err, &se):
		code = se.code
	case errors.Is(err, metadata.ErrDecode):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &me), errors.Is(err, maps.ErrNoToken), errors.Is(err, postcard.ErrNoProvider):
		code = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		code = http.StatusServiceUnavailable
	}
	klog.Warningf("request failed (%d): %v", code, err)
	http.Error(w, err.Error(), code)
}

// receivePhoto stores the "photo" upload in a temporary file, keeping its extension.
func receivePhoto(r *http.Request) (string, func(), error) {
	if err := r.ParseMultipartForm(MaxUpload); err != nil {
		return "", nil, badRequest(fmt.Errorf("parse form: %w", err))
	}

	f, hdr, err := r.FormFile("photo")
	if err != nil {
		return "", nil, badRequest(fmt.Errorf("photo: %w", err))
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	tmp, err := os.CreateTemp("", "photomapo-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("temp: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, f); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close: %w", err)
	}

	klog.V(1).Infof("received %s (%d bytes)", hdr.Filename, hdr.Size)
	return tmp.Name(), cleanup, nil
}

// formImage decodes an optional image upload.
func formImage(r *http.Request, field string) (image.Image, error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return img, nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		klog.V(1).Infof("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
