package photomapo

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

//go:embed assets/index.tmpl
var idxTmpl string

//go:embed assets/style.css
var styleText string

// IndexFile is the gallery page written into the output directory.
const IndexFile = "index.html"

// Render writes the postcard gallery for col into c.OutDir and returns its path.
func Render(c *Config, col *Collection) (string, error) {
	bs, err := renderIndex(c, col)
	if err != nil {
		return "", fmt.Errorf("render index: %w", err)
	}

	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	p := filepath.Join(c.OutDir, IndexFile)
	klog.V(1).Infof("writing index with %d postcards to %s", len(col.Photos), p)
	if err := os.WriteFile(p, bs, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return p, nil
}

func renderIndex(c *Config, col *Collection) ([]byte, error) {
	tmpl, err := template.New("index").Funcs(tmplFunctions()).Parse(idxTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	located := 0
	for _, p := range col.Photos {
		if p.HasGPS {
			located++
		}
	}

	title := col.Title
	if title == "" {
		title = c.Title
	}

	data := struct {
		Title   string
		OutDir  string
		Photos  []*Photo
		Located int
		Style   template.CSS
	}{
		Title:   title,
		OutDir:  c.OutDir,
		Photos:  col.Photos,
		Located: located,
		Style:   template.CSS(styleText),
	}

	var tpl bytes.Buffer
	if err = tmpl.Execute(&tpl, data); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return tpl.Bytes(), nil
}

// tmplFunctions are functions available to our templates.
func tmplFunctions() template.FuncMap {
	return template.FuncMap{
		"Href": func(base string, p string) string {
			r, err := filepath.Rel(base, p)
			if err != nil {
				return fmt.Sprintf("ERROR[%v]", err)
			}
			return filepath.ToSlash(r)
		},
		"OSMLink": func(lat, lon float64) string {
			return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=15/%.6f/%.6f", lat, lon, lat, lon)
		},
		"BasePath": filepath.Base,
	}
}
