// SPDX-License-Identifier: MIT

package masks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// fileFormat mirrors the editor's on-disk schema:
// {"strips":[{"corners":[[x,y],[x,y],[x,y],[x,y]]}, ...]}
type fileFormat struct {
	Strips []stripEntry `json:"strips"`
}

type stripEntry struct {
	Corners [][2]float64 `json:"corners"`
}

// Load reads and validates a mask set from path. A missing file yields the
// default band layout so a fresh install projects something sensible.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read mask file: %w", err)
	}
	return Decode(data)
}

// Decode parses and validates the serialized mask set.
func Decode(data []byte) (*Set, error) {
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse mask file: %w", err)
	}
	if len(ff.Strips) != RegionCount {
		return nil, fmt.Errorf("%w: got %d", ErrWrongCount, len(ff.Strips))
	}

	s := &Set{}
	for i, strip := range ff.Strips {
		if len(strip.Corners) != 4 {
			return nil, fmt.Errorf("region %d: expected 4 corners, got %d", i, len(strip.Corners))
		}
		for j, c := range strip.Corners {
			s.Regions[i].Corners[j] = Point{X: c[0], Y: c[1]}
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode serializes the mask set in the editor's schema.
func Encode(s *Set) ([]byte, error) {
	ff := fileFormat{Strips: make([]stripEntry, RegionCount)}
	for i := range s.Regions {
		entry := stripEntry{Corners: make([][2]float64, 4)}
		for j, c := range s.Regions[i].Corners {
			entry.Corners[j] = [2]float64{c.X, c.Y}
		}
		ff.Strips[i] = entry
	}
	return json.MarshalIndent(ff, "", "  ")
}

// Save writes the mask set atomically so the render loop can reload it
// mid-run without ever observing a torn file.
func Save(path string, s *Set) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encode mask file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir mask dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending mask file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write mask file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace mask file: %w", err)
	}
	return nil
}
