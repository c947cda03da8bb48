// SPDX-License-Identifier: MIT

// Package library indexes the playable clips under the media root. The
// index is an immutable snapshot: a reload builds a complete replacement
// and swaps it in atomically, so readers never observe a half-built
// library.
package library

import (
	"errors"
	"time"

	"github.com/kschult4/Halloween-2025/internal/decode"
	"github.com/kschult4/Halloween-2025/internal/frame"
)

// Category partitions the library into the two playback modes.
type Category string

const (
	CategoryActive  Category = "active"
	CategoryAmbient Category = "ambient"
)

// Categories lists the scanned categories in folder order.
var Categories = []Category{CategoryActive, CategoryAmbient}

var (
	ErrNotFound      = errors.New("media not found")
	ErrEmptyCategory = errors.New("no assets in category")
	// ErrNoAmbient marks a reload that produced zero ambient assets. The
	// previous snapshot is retained; startup treats this as fatal.
	ErrNoAmbient = errors.New("library reload yielded no ambient assets")
)

// Asset is one playable clip. Immutable once constructed; replaced
// wholesale on reload.
type Asset struct {
	ID         string // filename stem
	Category   Category
	Path       string // absolute
	Meta       decode.Metadata
	FirstFrame *frame.Frame // cached poster frame, may be nil
	ScanTime   time.Time
}

// Counts reports assets indexed per category after a reload.
type Counts map[Category]int

// snapshot is one immutable library generation.
type snapshot struct {
	byID    map[Category]map[string]*Asset
	ordered map[Category][]*Asset // lexical order, drives fallback selection
}

func emptySnapshot() *snapshot {
	s := &snapshot{
		byID:    make(map[Category]map[string]*Asset),
		ordered: make(map[Category][]*Asset),
	}
	for _, c := range Categories {
		s.byID[c] = make(map[string]*Asset)
	}
	return s
}
