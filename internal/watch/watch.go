// Package watch reloads a local dataset when its file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ReloadFunc is called after the watched file has settled.
type ReloadFunc func(ctx context.Context) error

// File watches path and calls reload once writes have been quiet for debounce.
//
// The parent directory is watched rather than the file itself, so editors and tools that
// replace the file by rename are still observed. File blocks until ctx is cancelled.
func File(ctx context.Context, path string, debounce time.Duration, reload ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log.WithFields(log.Fields{"path": abs, "debounce": debounce}).Info("Watching dataset file")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.WithFields(log.Fields{"path": abs, "op": ev.Op.String()}).Debug("Dataset file changed")
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Dataset watcher error")
		case <-timer.C:
			if err := reload(ctx); err != nil {
				log.WithError(err).WithField("path", abs).Error("Dataset reload failed, keeping previous session")
			}
		}
	}
}
