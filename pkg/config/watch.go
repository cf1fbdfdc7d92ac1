package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 300 * time.Millisecond

// Watch reloads path whenever it changes and hands valid configurations to
// onChange. Invalid files are logged and skipped. It blocks until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	ticker := time.NewTicker(debounce / 3)
	defer ticker.Stop()

	var pending time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < debounce {
				continue
			}
			pending = time.Time{}
			cfg, err := Load(target)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logger.Warn("ignoring invalid config change", zap.String("path", target), zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.String("path", target))
			onChange(cfg)
		}
	}
}
