// Package indexwatch watches the vector index's on-disk path for a new
// generation written by a separate Index Builder run and reloads it into a
// live *vectorindex.VectorIndex, so a long-lived Router never serves a
// stale handle after a rebuild. It adapts the teacher's internal/watcher
// fsnotify-with-polling-fallback strategy, trimmed to a single file rather
// than a whole gitignore-aware source tree: there is exactly one path to
// watch here, so the debounce/ignore machinery the teacher needed for a
// recursive directory tree has no job to do.
package indexwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

// DefaultPollInterval is the fallback poll period used when fsnotify fails
// to start (e.g. on a network mount), mirroring the teacher's hybrid
// watcher's fsnotify-then-poll fallback order.
const DefaultPollInterval = 2 * time.Second

// Watcher reloads a VectorIndex whenever its backing path changes.
type Watcher struct {
	path   string
	index  *vectorindex.VectorIndex
	onLoad func(error)
}

// New constructs a Watcher for path, calling index.Load(path) on every
// detected change. onLoad, if non-nil, is invoked with the result of each
// reload attempt (nil on success) for callers that want to log or surface
// reload failures.
func New(path string, index *vectorindex.VectorIndex, onLoad func(error)) *Watcher {
	return &Watcher{path: path, index: index, onLoad: onLoad}
}

// Run blocks until ctx is cancelled, reloading the index on each detected
// write/create/rename of path. It prefers fsnotify and falls back to
// polling the file's mtime if the watcher cannot be started.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.runFsnotify(ctx); err != nil {
		slog.Warn("fsnotify unavailable for index watch, falling back to polling",
			slog.String("error", err.Error()))
		w.runPolling(ctx)
	}
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("index watch fsnotify error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) {
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	err := w.index.Load(w.path)
	if err != nil {
		slog.Warn("index reload failed", slog.String("path", w.path), slog.String("error", err.Error()))
	} else {
		slog.Info("index reloaded", slog.String("path", w.path))
	}
	if w.onLoad != nil {
		w.onLoad(err)
	}
}
