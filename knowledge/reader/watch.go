package reader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/assistmesh/logging"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce coalesces bursts of events (default 250ms).
	Debounce time.Duration

	Logger logging.Logger
}

// Watch reports created or modified supported files below root until ctx is
// done. Paths are batched per debounce window and passed to fn in sorted
// order. Directories created later are watched too. Removals are ignored.
func Watch(ctx context.Context, root string, fn func(ctx context.Context, paths []string), optFns ...func(o *WatchOptions)) error {
	opts := WatchOptions{Debounce: 250 * time.Millisecond, Logger: logging.NoOpLogger{}}
	for _, f := range optFns {
		f(&opts)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reader: watch: %w", err)
	}
	defer w.Close()

	if err := addTree(w, root); err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		fire    = make(chan struct{}, 1)
	)

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		mu.Unlock()

		if len(paths) > 0 {
			slices.Sort(paths)
			fn(ctx, paths)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case <-fire:
			flush()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			opts.Logger.Warn("reader.watch.error", "error", err.Error())

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			info, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := addTree(w, ev.Name); err != nil {
					opts.Logger.Warn("reader.watch.add_failed", "path", ev.Name, "error", err.Error())
				}
				continue
			}
			if !Supported(ev.Name) {
				continue
			}

			mu.Lock()
			pending[ev.Name] = struct{}{}
			mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(opts.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				return fmt.Errorf("reader: watch %s: %w", path, err)
			}
		}
		return nil
	})
}
