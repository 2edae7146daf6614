package metadata

import (
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"k8s.io/klog/v2"
)

// NativeSource reads EXIF in-process with goexif.
type NativeSource struct{}

// Fields returns every EXIF field goexif can decode from path.
func (NativeSource) Fields(path string) ([]Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		if x == nil {
			klog.V(1).Infof("no exif in %s: %v", path, err)
			return nil, nil
		}
		klog.Warningf("partial exif in %s: %v", path, err)
	}

	w := &fieldWalker{}
	if err := x.Walk(w); err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	return w.fields, nil
}

type fieldWalker struct {
	fields []Field
}

func (w *fieldWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if name == "" || tag == nil {
		return nil
	}

	if name == exif.GPSInfoIFDPointer {
		w.fields = append(w.fields, Field{ID: gpsPointer, Name: GPSInfo})
		return nil
	}

	v, err := tagValue(tag)
	if err != nil {
		klog.V(2).Infof("skipping %s: %v", name, err)
		return nil
	}

	w.fields = append(w.fields, Field{
		ID:    tag.Id,
		Name:  string(name),
		GPS:   strings.HasPrefix(string(name), "GPS"),
		Value: v,
	})
	return nil
}

// tagValue converts a TIFF tag into a plain Go value.
func tagValue(tag *tiff.Tag) (any, error) {
	n := int(tag.Count)

	switch tag.Format() {
	case tiff.StringVal:
		return tag.StringVal()
	case tiff.RatVal:
		rs := make([]Rational, n)
		for i := range rs {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return nil, err
			}
			rs[i] = Rational{Num: num, Den: den}
		}
		if n == 1 {
			return rs[0], nil
		}
		return rs, nil
	case tiff.IntVal:
		is := make([]int64, n)
		for i := range is {
			v, err := tag.Int64(i)
			if err != nil {
				return nil, err
			}
			is[i] = v
		}
		if n == 1 {
			return is[0], nil
		}
		return is, nil
	case tiff.FloatVal:
		fs := make([]float64, n)
		for i := range fs {
			v, err := tag.Float(i)
			if err != nil {
				return nil, err
			}
			fs[i] = v
		}
		if n == 1 {
			return fs[0], nil
		}
		return fs, nil
	default:
		return append([]byte(nil), tag.Val...), nil
	}
}
