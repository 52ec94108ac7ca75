package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchNotificationSettings watches the settings file and invokes onChange
// with the freshly loaded settings whenever it is written or replaced. The
// watcher runs until ctx is cancelled. The parent directory is watched rather
// than the file itself because saveJSON replaces the file via rename, which
// drops a direct file watch.
func WatchNotificationSettings(ctx context.Context, path string, logger *zap.Logger, onChange func(NotificationSettings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				settings, err := LoadNotificationSettings(path)
				if err != nil {
					logger.Warn("reload notification settings failed", zap.Error(err))
					continue
				}
				logger.Debug("notification settings reloaded", zap.String("path", path))
				onChange(settings)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
