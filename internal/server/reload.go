package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/guardrace/internal/logging"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the config and denylist files and triggers hot-reload.
type Reloader struct {
	watcher  *fsnotify.Watcher
	reload   func() error
	paths    []string
	debounce time.Duration
	log      *slog.Logger
}

// NewReloader creates a file watcher for the given paths. Missing or empty
// paths are skipped.
func NewReloader(server *Server, paths []string) (*Reloader, error) {
	return newReloader(server.Reload, paths, reloadDebounce, server.log)
}

func newReloader(reload func() error, paths []string, debounce time.Duration, log *slog.Logger) (*Reloader, error) {
	if log == nil {
		log = logging.Discard()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	var watched []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
		watched = append(watched, p)
	}

	return &Reloader{watcher: watcher, reload: reload, paths: watched, debounce: debounce, log: log}, nil
}

// Paths returns the files actually being watched.
func (r *Reloader) Paths() []string {
	return r.paths
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				changed := event.Name
				debounce = time.AfterFunc(r.debounce, func() {
					if err := r.reload(); err != nil {
						r.log.Error("hot-reload failed", "file", changed, "err", err)
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("file watcher error", "err", err)
		}
	}
}
