package photomapo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// photoExts are the source formats postcards can be built from.
var photoExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// IsPhoto reports whether path has a supported photo extension.
func IsPhoto(path string) bool {
	return photoExts[strings.ToLower(filepath.Ext(path))]
}

// Find returns the photos under root, skipping dot-files and anything inside skip.
func Find(root string, skip string) ([]*Photo, error) {
	found := []*Photo{}
	root = filepath.Clean(root)

	absSkip := ""
	if skip != "" {
		if a, err := filepath.Abs(skip); err == nil {
			absSkip = a
		}
	}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}

			if de.IsDir() {
				if absSkip != "" {
					if a, err := filepath.Abs(path); err == nil && a == absSkip {
						klog.V(1).Infof("skipping output dir %s", path)
						return godirwalk.SkipThis
					}
				}
				return nil
			}

			if !IsPhoto(path) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			fi, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat: %w", err)
			}

			klog.V(1).Infof("found %s", path)
			found = append(found, &Photo{
				InPath:  path,
				RelPath: rel,
				ModTime: fi.ModTime(),
			})
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].RelPath < found[j].RelPath
	})
	return found, nil
}
