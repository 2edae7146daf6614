package photomapo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// stamp records what a postcard was built from. It lives in a hidden file next to the postcard.
type stamp struct {
	Notes    []string `json:"notes,omitempty"`
	Style    string   `json:"style,omitempty"`
	Zoom     int      `json:"zoom,omitempty"`
	Quality  int      `json:"quality,omitempty"`
	Captions bool     `json:"captions,omitempty"`

	Caption     string `json:"caption,omitempty"`
	MapFallback bool   `json:"map_fallback,omitempty"`
}

// matches reports whether a postcard stamped with s can be reused for the settings in want.
// Postcards drawn without their map, or missing a requested caption, never match.
func (s *stamp) matches(want *stamp) bool {
	if s.MapFallback {
		return false
	}
	if want.Captions && s.Caption == "" {
		return false
	}
	return slices.Equal(s.Notes, want.Notes) &&
		s.Style == want.Style &&
		s.Zoom == want.Zoom &&
		s.Quality == want.Quality &&
		s.Captions == want.Captions
}

// stampPath returns the stamp file for the postcard at out: a/b.postcard.jpg has a/.b.postcard.jpg.json.
func stampPath(out string) string {
	return filepath.Join(filepath.Dir(out), "."+filepath.Base(out)+".json")
}

func readStamp(path string) (*stamp, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &stamp{}
	if err := json.Unmarshal(bs, s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

func writeStamp(path string, s *stamp) error {
	bs, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		return fmt.Errorf("write stamp: %w", err)
	}
	return nil
}
