package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settingsWatcher watches the directory holding the settings file so that
// editors which replace the file on save are still seen.
type settingsWatcher struct {
	w        *fsnotify.Watcher
	name     string
	debounce time.Duration
	logger   *zap.Logger
}

func newSettingsWatcher(path string, debounce time.Duration, logger *zap.Logger) (*settingsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &settingsWatcher{w: w, name: filepath.Base(path), debounce: debounce, logger: logger}, nil
}

// Run calls apply once per burst of changes to the settings file until ctx
// is done.
func (s *settingsWatcher) Run(ctx context.Context, apply func()) {
	timer := time.NewTimer(s.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != s.name {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			s.logger.Debug("settings changed", zap.String("event", ev.String()))
			timer.Reset(s.debounce)
			pending = true
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("settings watcher error", zap.Error(err))
		case <-timer.C:
			if pending {
				pending = false
				apply()
			}
		}
	}
}

func (s *settingsWatcher) Close() error {
	return s.w.Close()
}
