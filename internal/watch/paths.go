package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pathWatcher turns filesystem activity under a set of directories into
// debounced triggers. Directories are watched non-recursively; the probes
// look at fixed paths, not trees.
type pathWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	watched  []string
	events   atomic.Int64
}

func newPathWatcher(paths []string, debounce time.Duration, logger *slog.Logger) (*pathWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	pw := &pathWatcher{watcher: w, debounce: debounce, logger: logger}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			logger.Debug("watch path skipped", "path", p, "error", err)
			continue
		}
		if err := w.Add(p); err != nil {
			logger.Warn("watch path not added", "path", p, "error", err)
			continue
		}
		pw.watched = append(pw.watched, p)
	}
	return pw, nil
}

// run forwards one trigger per quiet period after a burst of events. It
// returns when ctx ends or the watcher is closed.
func (pw *pathWatcher) run(ctx context.Context, trigger func(reason string)) {
	var pending string
	var last time.Time
	ticker := time.NewTicker(pw.tick())
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			pw.events.Add(1)
			pending, last = ev.Name, time.Now()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			if pending != "" && time.Since(last) >= pw.debounce {
				trigger("fs:" + pending)
				pending = ""
			}

		case <-ctx.Done():
			return
		}
	}
}

func (pw *pathWatcher) tick() time.Duration {
	t := pw.debounce / 4
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	return t
}

func (pw *pathWatcher) close() error { return pw.watcher.Close() }
