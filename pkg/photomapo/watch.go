package photomapo

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// Settle is how long the input directories must be quiet before a rebuild.
var Settle = 750 * time.Millisecond

// Watch rebuilds whenever photos under dirs change, calling rebuild after events settle.
// It returns when ctx is done.
func Watch(ctx context.Context, dirs []string, skip string, rebuild func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	watched, err := watchDirs(dirs, skip)
	if err != nil {
		return err
	}
	klog.Infof("watching %d dirs ...", len(watched))
	for _, d := range watched {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			klog.V(1).Infof("event: %s", event)
			if event.Has(fsnotify.Create) {
				if isDir(event.Name) && !strings.HasPrefix(filepath.Base(event.Name), ".") {
					klog.Infof("watching new dir %s", event.Name)
					if err := w.Add(event.Name); err != nil {
						klog.Warningf("watch %s: %v", event.Name, err)
					}
				}
			}
			pending = true
			timer.Reset(Settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			klog.Infof("changes detected, rebuilding ...")
			if err := rebuild(ctx); err != nil {
				klog.Errorf("rebuild failed: %v", err)
			}
		}
	}
}

// relevant filters out editor droppings and events that cannot change a postcard.
func relevant(e fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(e.Name), ".") {
		return false
	}
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) && !e.Has(fsnotify.Remove) {
		return false
	}
	return IsPhoto(e.Name) || isDir(e.Name) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)
}

// watchDirs returns every non-hidden directory under dirs, excluding skip.
func watchDirs(dirs []string, skip string) ([]string, error) {
	absSkip, _ := filepath.Abs(skip)
	var out []string

	for _, root := range dirs {
		root = filepath.Clean(root)
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if !de.IsDir() {
					return nil
				}
				if path != root && strings.HasPrefix(filepath.Base(path), ".") {
					return godirwalk.SkipThis
				}
				if skip != "" {
					if a, err := filepath.Abs(path); err == nil && a == absSkip {
						return godirwalk.SkipThis
					}
				}
				out = append(out, path)
				return nil
			},
			Unsorted: true,
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	slices.Sort(out)
	return slices.Compact(out), nil
}

func isDir(path string) bool {
	de, err := godirwalk.NewDirent(path)
	if err != nil {
		return false
	}
	return de.IsDir()
}
