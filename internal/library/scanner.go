// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// allowedExtensions mirrors what the transcode helper produces.
var allowedExtensions = []string{".mp4", ".avi", ".mov"}

// Reload scans <root>/active and <root>/ambient, probes every candidate
// and swaps the index atomically. A reload yielding zero ambient assets
// does not swap: the previous snapshot is retained and ErrNoAmbient is
// returned (fatal at startup, logged at runtime).
func (l *Library) Reload(ctx context.Context, root string) (Counts, error) {
	started := time.Now()
	next := emptySnapshot()

	for _, cat := range Categories {
		dir := filepath.Join(root, string(cat))
		assets, err := l.scanCategory(ctx, dir, cat)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", cat, err)
		}
		for _, a := range assets {
			next.byID[cat][a.ID] = a
			next.ordered[cat] = append(next.ordered[cat], a)
		}
	}

	counts := make(Counts, len(Categories))
	for _, cat := range Categories {
		counts[cat] = len(next.ordered[cat])
	}

	if counts[CategoryAmbient] == 0 {
		l.logger.Error().
			Str("event", "library.reload_no_ambient").
			Str("path", root).
			Msg("reload produced no ambient assets, keeping previous snapshot")
		return counts, ErrNoAmbient
	}

	l.install(next)
	l.logger.Info().
		Str("event", "library.reloaded").
		Str("path", root).
		Int("active", counts[CategoryActive]).
		Int("ambient", counts[CategoryAmbient]).
		Dur("elapsed", time.Since(started)).
		Msg("media library reloaded")
	return counts, nil
}

// scanCategory indexes one category folder. A missing folder is an empty
// category, not an error; per-file probe failures reject the file and
// continue.
func (l *Library) scanCategory(ctx context.Context, dir string, cat Category) ([]*Asset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn().
				Str("event", "library.category_missing").
				Str("path", dir).
				Str("category", string(cat)).
				Msg("category folder missing")
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}

	scanTime := time.Now()
	var assets []*Asset
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !hasAllowedExtension(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}

		md, err := l.probe(ctx, path)
		if err != nil {
			l.logger.Warn().
				Err(err).
				Str("event", "library.probe_rejected").
				Str("path", path).
				Msg("rejecting non-decodable file")
			continue
		}

		asset := &Asset{
			ID:       stem(entry.Name()),
			Category: cat,
			Path:     path,
			Meta:     md,
			ScanTime: scanTime,
		}

		if l.grab != nil {
			if f, err := l.grab(ctx, path, md); err != nil {
				l.logger.Warn().
					Err(err).
					Str("event", "library.first_frame_failed").
					Str("media", asset.ID).
					Msg("poster frame unavailable")
			} else {
				asset.FirstFrame = f
			}
		}

		assets = append(assets, asset)
	}
	return assets, nil
}

func hasAllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// stem derives the media identifier from the filename.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
