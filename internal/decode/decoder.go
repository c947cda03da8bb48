// SPDX-License-Identifier: MIT

package decode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/kschult4/Halloween-2025/internal/frame"
)

// Decoder decodes a container into raw RGB24 frames by piping ffmpeg's
// rawvideo output. A background goroutine pulls frames off the pipe so
// ReadFrame can honor per-call deadlines; the pipe's own backpressure
// keeps ffmpeg from running ahead of playback.
type Decoder struct {
	path string
	md   Metadata

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	frames  chan *frame.Frame
	readErr chan error
	index   int64
}

// Open starts a decoder for path. Only the process launch happens here;
// the first frame arrives via ReadFrame. ctx bounds the launch, not the
// decoder lifetime.
func Open(ctx context.Context, path string, md Metadata) (*Decoder, error) {
	d := &Decoder{path: path, md: md}
	if err := d.start(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(FFmpegPath,
		"-v", "error",
		"-i", d.path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-an",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg for %s: %w", d.path, err)
	}

	d.cmd = cmd
	d.stdout = stdout
	d.frames = make(chan *frame.Frame, 1)
	d.readErr = make(chan error, 1)
	d.index = 0

	go d.readLoop(stdout, d.frames, d.readErr)
	return nil
}

// readLoop pulls fixed-size rawvideo frames off the pipe until EOF or a
// pipe error. It exits when the pipe closes, which Close and Restart
// force by killing the process.
func (d *Decoder) readLoop(r io.Reader, frames chan<- *frame.Frame, readErr chan<- error) {
	interval := d.md.FrameInterval()
	size := frame.Size(d.md.Width, d.md.Height)
	var index int64

	for {
		f := frame.New(d.md.Width, d.md.Height)
		if _, err := io.ReadFull(r, f.Data[:size]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				readErr <- ErrEndOfStream
			} else {
				readErr <- fmt.Errorf("read frame: %w", err)
			}
			return
		}
		f.Timestamp = time.Duration(index) * interval
		index++
		frames <- f
	}
}

// Metadata implements Source.
func (d *Decoder) Metadata() Metadata {
	return d.md
}

// ReadFrame implements Source. The context deadline bounds a stalled
// decode; expiry is reported as the context error so the resilience layer
// can count it as a failure.
func (d *Decoder) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	d.mu.Lock()
	frames, readErr := d.frames, d.readErr
	d.mu.Unlock()

	select {
	case f := <-frames:
		return f, nil
	case err := <-readErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Restart implements Source: tear the process down and relaunch from the
// first frame. ffmpeg has no cheap seek on a rawvideo pipe, so looping is
// a fresh decode.
func (d *Decoder) Restart() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	return d.start(context.Background())
}

// Close implements Source.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

func (d *Decoder) stopLocked() {
	if d.cmd == nil {
		return
	}
	_ = d.stdout.Close()
	_ = d.cmd.Process.Kill()
	_ = d.cmd.Wait()

	// Drain the reader goroutine so it can exit.
	select {
	case <-d.frames:
	default:
	}
	select {
	case <-d.readErr:
	default:
	}
	d.cmd = nil
}
