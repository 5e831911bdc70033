package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a local policy file on change. Load errors are
// logged and ignored so the prior policy stays in force.
type Watcher struct {
	path     string
	store    *Store
	logger   *slog.Logger
	onReload func(*PolicyFile)
}

// NewWatcher creates a watcher for path that swaps reloaded policies
// into store. onReload, if non-nil, runs after each successful swap.
func NewWatcher(path string, store *Store, logger *slog.Logger, onReload func(*PolicyFile)) *Watcher {
	return &Watcher{path: path, store: store, logger: logger, onReload: onReload}
}

// Run watches until ctx is done. Editors typically write via
// rename+create, so the parent directory is watched and events are
// debounced before reloading.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var debounce *time.Timer
	reloadCh := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) reload() {
	pf, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("policy reload rejected, keeping prior policy",
			"path", w.path, "error", err)
		return
	}
	w.store.Replace(pf)
	w.logger.Info("policy reloaded",
		"path", w.path,
		"blocked", len(pf.Blocked),
		"moderate", len(pf.Moderate),
	)
	if w.onReload != nil {
		w.onReload(pf)
	}
}
