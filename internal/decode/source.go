// SPDX-License-Identifier: MIT

package decode

import (
	"context"
	"errors"
	"io"

	"github.com/kschult4/Halloween-2025/internal/frame"
)

// ErrEndOfStream is returned by ReadFrame when the source is exhausted.
// The playback engine answers it by restarting the source (loop playback).
var ErrEndOfStream = errors.New("end of stream")

// IsEndOfStream reports whether err marks a clean end of the stream.
func IsEndOfStream(err error) bool {
	return errors.Is(err, ErrEndOfStream) || errors.Is(err, io.EOF)
}

// Source is a sequential frame producer. Implementations are single-owner:
// exactly one goroutine calls ReadFrame at a time, and ownership transfers
// only at switch boundaries.
type Source interface {
	// Metadata describes the stream this source decodes.
	Metadata() Metadata
	// ReadFrame returns the next frame, ErrEndOfStream at EOF, or the
	// context error when the per-call deadline expires first.
	ReadFrame(ctx context.Context) (*frame.Frame, error)
	// Restart seeks the source back to its first frame.
	Restart() error
	// Close releases the underlying decoder.
	Close() error
}
