// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"io"

	"github.com/kschult4/Halloween-2025/internal/frame"
)

// Output is the display surface the composited frame is presented to.
// The daemon is a producer of frames only; concrete outputs hand the
// frame to whatever displays it.
type Output interface {
	Present(f *frame.Frame) error
	Close() error
}

// Discard drops every frame. Used headless and in tests.
type Discard struct{}

func (Discard) Present(*frame.Frame) error { return nil }
func (Discard) Close() error               { return nil }

// Writer streams raw RGB24 frames to w, typically a pipe into an external
// player or the transcode helper:
//
//	daemon | ffplay -f rawvideo -pixel_format rgb24 -video_size WxH -
type Writer struct {
	w io.Writer
}

// NewWriter creates a rawvideo output over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (o *Writer) Present(f *frame.Frame) error {
	if _, err := o.w.Write(f.Data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (o *Writer) Close() error {
	if c, ok := o.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
