// SPDX-License-Identifier: MIT

// Package frame defines the raw video frame type passed between the
// decoder, the crossfade blender and the region compositor.
package frame

import "time"

// BytesPerPixel is fixed: the whole pipeline runs on packed RGB24.
const BytesPerPixel = 3

// Frame is a packed RGB24 video frame. Data is Height rows of Stride
// bytes each; Stride is at least Width*BytesPerPixel.
type Frame struct {
	Data      []byte
	Stride    int
	Width     int
	Height    int
	Timestamp time.Duration // position within the source stream
}

// New allocates a zeroed (black) frame of the given dimensions.
func New(width, height int) *Frame {
	stride := width * BytesPerPixel
	return &Frame{
		Data:   make([]byte, stride*height),
		Stride: stride,
		Width:  width,
		Height: height,
	}
}

// Size returns the expected data length for a frame of the given dimensions.
func Size(width, height int) int {
	return width * height * BytesPerPixel
}

// Clone creates a deep copy of the frame. Use this when the frame data
// must outlive the decoder buffer it came from.
func (f *Frame) Clone() *Frame {
	clone := &Frame{
		Data:      make([]byte, len(f.Data)),
		Stride:    f.Stride,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
	}
	copy(clone.Data, f.Data)
	return clone
}

// At returns the pixel at (x, y). No bounds checking.
func (f *Frame) At(x, y int) (r, g, b byte) {
	i := y*f.Stride + x*BytesPerPixel
	return f.Data[i], f.Data[i+1], f.Data[i+2]
}

// Set writes the pixel at (x, y). No bounds checking.
func (f *Frame) Set(x, y int, r, g, b byte) {
	i := y*f.Stride + x*BytesPerPixel
	f.Data[i] = r
	f.Data[i+1] = g
	f.Data[i+2] = b
}
