package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/openjdk/jmerge/pkg/logger"
)

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(*Config)

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	loader *Loader
	path   string
	log    *logger.Logger
	onLoad ReloadFunc
}

// NewWatcher creates a watcher over the given configuration file.
func NewWatcher(path string, log *logger.Logger, onLoad ReloadFunc) *Watcher {
	return &Watcher{
		loader: NewLoader(path),
		path:   path,
		log:    log.WithPrefix("config"),
		onLoad: onLoad,
	}
}

// Run watches until the context is cancelled. A change that fails to load or
// validate is logged and skipped; the previous configuration stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }() //nolint:errcheck

	// Watch the directory: editors replace files rather than writing in
	// place, which drops the watch on the file itself.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := w.loader.LoadConfig()
			if err != nil {
				w.log.Warn("ignoring config change: %v", err)
				continue
			}
			w.log.Info("configuration reloaded from %s", w.path)
			w.onLoad(cfg)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watch error: %v", err)
		}
	}
}
