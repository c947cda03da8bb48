// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher watches the category folders under root and triggers a
// reload when clips are added or removed, debounced so a batch copy lands
// as one reload. Reload failures keep the previous snapshot.
func (l *Library) StartWatcher(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create library watcher: %w", err)
	}

	for _, cat := range Categories {
		dir := filepath.Join(root, string(cat))
		if err := watcher.Add(dir); err != nil {
			l.logger.Warn().
				Err(err).
				Str("event", "library.watch_skipped").
				Str("path", dir).
				Msg("category folder not watchable")
		}
	}

	l.logger.Info().
		Str("event", "library.watcher_started").
		Str("path", root).
		Msg("watching media folders for changes")

	go l.watchLoop(ctx, watcher, root)
	return nil
}

func (l *Library) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, root string) {
	var debounce *time.Timer
	const debounceDuration = 2 * time.Second // media copies arrive in bursts

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, func() {
					if _, err := l.Reload(ctx, root); err != nil {
						l.logger.Error().
							Err(err).
							Str("event", "library.auto_reload_failed").
							Msg("automatic library reload failed")
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().
				Err(err).
				Str("event", "library.watcher_error").
				Msg("library watcher error")
		}
	}
}
