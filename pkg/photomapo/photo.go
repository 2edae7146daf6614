package photomapo

import (
	"time"

	"github.com/tstromberg/photomapo/pkg/metadata"
)

// Photo is a source image and the postcard built from it.
type Photo struct {
	InPath   string
	RelPath  string
	ModTime  time.Time
	Metadata *metadata.Metadata

	// OutPath is the postcard; OriginalPath is the copied source, if any.
	OutPath      string
	OriginalPath string

	Model   string
	Taken   string
	Caption string
	Notes   []string

	Lat    float64
	Lon    float64
	HasGPS bool

	// Fresh is set when the postcard was already up to date.
	Fresh bool
}

// Collection is the result of a build.
type Collection struct {
	Title  string
	Photos []*Photo
	Failed map[string]error
}

// Built returns the number of postcards rendered in this run.
func (c *Collection) Built() int {
	n := 0
	for _, p := range c.Photos {
		if !p.Fresh {
			n++
		}
	}
	return n
}

func (p *Photo) fill(md *metadata.Metadata) {
	p.Metadata = md
	p.Model = md.StringValue(metadata.Model)
	p.Taken = md.StringValue(metadata.DateTime)
	p.Caption = md.StringValue(metadata.Caption)
	p.Lat, p.Lon, p.HasGPS = md.Coordinates()
}
