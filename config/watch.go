package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce batches the burst of events editors produce on save
const reloadDebounce = 150 * time.Millisecond

// Watch reloads the settings file whenever it is written and hands every
// valid result to fn. Invalid edits are logged and ignored. The directory is
// watched rather than the file so that editors replacing the file on save
// keep being observed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log *zap.Logger, fn func(*Settings)) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	log.Debug("watching settings", zap.String("path", abs))

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			if !pending {
				continue
			}
			pending = false

			s, err := Load(abs)
			if err != nil {
				log.Warn("ignoring settings change", zap.Error(err))
				continue
			}
			log.Info("settings reloaded")
			fn(s)
		}
	}
}
