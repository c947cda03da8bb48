// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kschult4/Halloween-2025/internal/config"
	"github.com/kschult4/Halloween-2025/internal/decode"
	"github.com/kschult4/Halloween-2025/internal/frame"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/metrics"
)

// Prober resolves stream metadata for a candidate file. Files that fail
// probing are rejected as non-decodable.
type Prober func(ctx context.Context, path string) (decode.Metadata, error)

// FrameGrabber decodes the poster frame cached on each asset. Optional.
type FrameGrabber func(ctx context.Context, path string, md decode.Metadata) (*frame.Frame, error)

// Library maps identifiers to assets, partitioned by category.
type Library struct {
	strategy config.FallbackStrategy
	probe    Prober
	grab     FrameGrabber
	logger   zerolog.Logger

	current atomic.Pointer[snapshot]

	// round-robin pointers persist across reloads
	rrMu sync.Mutex
	rr   map[Category]int

	randFn func(n int) int
}

// Option configures a Library.
type Option func(*Library)

// WithProber replaces the ffprobe-backed prober.
func WithProber(p Prober) Option {
	return func(l *Library) { l.probe = p }
}

// WithFrameGrabber enables poster-frame caching at scan time.
func WithFrameGrabber(g FrameGrabber) Option {
	return func(l *Library) { l.grab = g }
}

// WithRand replaces the uniform random source used by the random strategy.
func WithRand(fn func(n int) int) Option {
	return func(l *Library) { l.randFn = fn }
}

// New creates an empty library with the given fallback strategy.
func New(strategy config.FallbackStrategy, opts ...Option) *Library {
	l := &Library{
		strategy: strategy,
		probe:    decode.Probe,
		logger:   xglog.WithComponent("library"),
		rr:       make(map[Category]int),
		randFn:   rand.Intn,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.current.Store(emptySnapshot())
	return l
}

// Resolve returns the asset registered under id in category. The original
// controller accepts bare identifiers and prefixes them with the category
// name, so "01" resolves to "active_01" in the active category.
func (l *Library) Resolve(id string, category Category) (*Asset, error) {
	snap := l.current.Load()
	byID := snap.byID[category]

	if a, ok := byID[id]; ok {
		return a, nil
	}
	prefix := string(category) + "_"
	if !strings.HasPrefix(id, prefix) {
		if a, ok := byID[prefix+id]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, id, category)
}

// Fallback selects a replacement asset from category using the configured
// strategy. Returns ErrEmptyCategory when nothing is indexed there; it
// never crosses into the other category.
func (l *Library) Fallback(category Category) (*Asset, error) {
	snap := l.current.Load()
	ordered := snap.ordered[category]
	if len(ordered) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCategory, category)
	}

	switch l.strategy {
	case config.FallbackRoundRobin:
		l.rrMu.Lock()
		i := l.rr[category] % len(ordered)
		l.rr[category] = i + 1
		l.rrMu.Unlock()
		return ordered[i], nil
	case config.FallbackRandom:
		return ordered[l.randFn(len(ordered))], nil
	default: // config.FallbackFirst
		return ordered[0], nil
	}
}

// Count returns the number of assets indexed in category.
func (l *Library) Count(category Category) int {
	return len(l.current.Load().ordered[category])
}

// Counts returns per-category asset counts.
func (l *Library) Counts() Counts {
	snap := l.current.Load()
	c := make(Counts, len(Categories))
	for _, cat := range Categories {
		c[cat] = len(snap.ordered[cat])
	}
	return c
}

// sortOrdered fixes the fallback ordering: lexical by identifier.
func sortOrdered(assets []*Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
}

// install swaps in a fully-built snapshot and refreshes gauges.
func (l *Library) install(snap *snapshot) {
	for _, cat := range Categories {
		sortOrdered(snap.ordered[cat])
	}
	l.current.Store(snap)
	for _, cat := range Categories {
		metrics.SetLibraryAssets(string(cat), len(snap.ordered[cat]))
	}
}
