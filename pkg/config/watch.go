package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// kubeDataLink is the symlink a Kubernetes configmap volume swaps on update.
const kubeDataLink = "..data"

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file is replaced or written. It runs until ctx is
// cancelled.
//
// The parent directory is watched, so replacing path by rename or swapping
// a configmap's ..data link is seen as well as a direct write.
//
// A reload that fails to parse is logged and the previous config stays
// active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger := slog.Default().With("component", "config-watch", "path", path)
	logger.Info("watching config for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !concerns(event, path) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "error", err)
				continue
			}
			logger.Info("config reloaded", "op", event.Op.String())
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}

func concerns(event fsnotify.Event, path string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == path || filepath.Base(name) == kubeDataLink
}
