// Change watcher. The index is a cache that external tools can silently
// invalidate by writing straight into the data directory; the watcher
// notices entity folders appearing or disappearing under a collection root
// and schedules a debounced folder index rebuild.

package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher rebuilds collection indexes when their folders change on disk.
type Watcher struct {
	store    *Store
	w        *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Watch starts watching the given collection roots of a disk-backed store.
// Each create, remove or rename event schedules a folder index rebuild for
// the collection, coalesced over the debounce window. The watcher stops
// when ctx is cancelled.
//
// Memory-backed stores have no directory to watch and return an error.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, collections ...string) (*Watcher, error) {
	base := s.fs.DiskPath()
	if base == "" {
		return nil, errWatchUnsupported
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{store: s, w: fw, debounce: debounce, timers: make(map[string]*time.Timer)}
	for _, collection := range collections {
		// The directory must exist before it can be watched.
		if _, err := s.fs.Dir(collection); err != nil {
			_ = fw.Close()
			return nil, err
		}
		if err := fw.Add(filepath.Join(base, collection)); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		_ = w.w.Close()
		w.stopTimers()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			// Rebuilds rewrite index.json themselves; reacting to that
			// write would loop forever.
			if filepath.Base(event.Name) == indexFileName {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.scheduleRebuild(filepath.Base(filepath.Dir(event.Name)))
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			slog.Warn("Error watching data directory", "err", err)
		}
	}
}

// stopTimers cancels every debounced rebuild still pending so nothing
// fires after the watcher has shut down. Only run's exit path calls this,
// and run is the only scheduler, so no new timers appear afterwards.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for collection, t := range w.timers {
		t.Stop()
		delete(w.timers, collection)
	}
}

func (w *Watcher) scheduleRebuild(collection string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[collection]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[collection] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, collection)
		w.mu.Unlock()
		if err := w.store.RebuildFolderIndex(collection); err != nil {
			slog.Error("Failed to rebuild index after external change", "collection", collection, "err", err)
		} else {
			slog.Info("Rebuilt index after external change", "collection", collection)
		}
	})
}
