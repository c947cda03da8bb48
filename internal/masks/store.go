// SPDX-License-Identifier: MIT

package masks

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/kschult4/Halloween-2025/internal/log"
)

// Store holds the active mask set with atomic hot-reload. The render loop
// reads a snapshot per frame; a reload swaps the snapshot wholesale so the
// compositor never observes a mask mid-edit.
type Store struct {
	path    string
	current atomic.Pointer[Set]
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewStore loads the mask file at path. A corrupt file is fatal here:
// startup is the point to catch a broken edit before the show begins.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: xglog.WithComponent("masks"),
	}
	set, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load mask file: %w", err)
	}
	s.current.Store(set)
	return s, nil
}

// Snapshot returns the current immutable mask set.
func (s *Store) Snapshot() *Set {
	return s.current.Load()
}

// Swap replaces the active set after validation. Used by cooperating
// editors running in-process.
func (s *Store) Swap(set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.current.Store(set)
	s.logger.Info().
		Str("event", "masks.swapped").
		Msg("mask set replaced")
	return nil
}

// Reload re-reads the mask file. On any failure the previous snapshot is
// retained; a bad runtime edit must not take down playback.
func (s *Store) Reload() error {
	set, err := Load(s.path)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("event", "masks.reload_failed").
			Str("path", s.path).
			Msg("mask reload failed, keeping previous set")
		return err
	}
	s.current.Store(set)
	s.logger.Info().
		Str("event", "masks.reloaded").
		Str("path", s.path).
		Msg("mask set reloaded")
	return nil
}

// StartWatcher watches the mask file and reloads on change, debounced so
// editor save bursts trigger a single reload.
func (s *Store) StartWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create mask watcher: %w", err)
	}
	s.watcher = watcher

	// Watch the directory, not the file: editors and Save replace the
	// file by rename, which would strand a watch on the old inode.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch mask dir: %w", err)
	}

	s.logger.Info().
		Str("event", "masks.watcher_started").
		Str("path", s.path).
		Msg("watching mask file for changes")

	go s.watchLoop(ctx)
	return nil
}

func (s *Store) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = s.watcher.Close()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, func() {
					_ = s.Reload()
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().
				Err(err).
				Str("event", "masks.watcher_error").
				Msg("mask watcher error")
		}
	}
}
