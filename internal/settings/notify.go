package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// One editor save fans out into several filesystem events; collapse them.
const debounceDelay = 200 * time.Millisecond

// Watch invokes onChange with freshly loaded settings after every change
// to the file at path. The parent directory is watched rather than the
// file itself so atomic renames and editors that replace the file are
// still seen. Watching stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(File)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		base := filepath.Base(path)
		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounceDelay)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounceDelay)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("settings watcher error", "error", err)
			case <-fire:
				fire = nil
				f, err := Load(path)
				if err != nil {
					slog.Warn("reloading settings failed", "path", path, "error", err)
					continue
				}
				slog.Debug("settings file changed", "path", path)
				onChange(f)
			}
		}
	}()
	return nil
}
