// SPDX-License-Identifier: MIT

// Package playback owns the decode sources: exactly one active source
// feeding the compositor, plus at most one warming source during a
// crossfade. All frame production happens on the render loop; preloading
// happens on whatever goroutine asked for it.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kschult4/Halloween-2025/internal/crossfade"
	"github.com/kschult4/Halloween-2025/internal/decode"
	"github.com/kschult4/Halloween-2025/internal/frame"
	"github.com/kschult4/Halloween-2025/internal/library"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/metrics"
	"github.com/kschult4/Halloween-2025/internal/resilience"
)

// ErrNoFrame is returned by Tick before the first frame ever decodes.
var ErrNoFrame = errors.New("no frame available yet")

// Opener opens a decode source for an asset. Injectable for tests.
type Opener func(ctx context.Context, asset *library.Asset) (decode.Source, error)

// Handle is a preloaded, ready-to-play source: container open, first
// frame decoded. Single-owner; ownership passes to the engine on
// SwitchTo.
type Handle struct {
	ID    uuid.UUID
	Asset *library.Asset
	src   decode.Source
	first *frame.Frame
}

// Discard releases a handle that will never be switched to.
func (h *Handle) Discard() {
	if h.src != nil {
		_ = h.src.Close()
	}
}

// playing tracks one source being advanced at its native frame rate.
type playing struct {
	handle   *Handle
	src      decode.Source
	last     *frame.Frame
	interval time.Duration
	nextAt   time.Time
}

// Options configures an Engine.
type Options struct {
	PreloadTimeout   time.Duration
	FrameReadTimeout time.Duration
	Open             Opener
}

// Engine is the playback engine. Tick is single-owner (the render loop);
// Preload and SwitchTo may be called from other goroutines, so shared
// state is mutex-guarded and switches are applied only at the next frame
// boundary.
type Engine struct {
	layer  *resilience.Layer
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	current  *playing
	incoming *playing
	pending  *pendingSwitch
	fader    crossfade.Controller
	blendBuf *frame.Frame
	lastGood *frame.Frame
}

type pendingSwitch struct {
	handle   *Handle
	duration time.Duration
}

// NewEngine creates a playback engine over the resilience layer.
func NewEngine(layer *resilience.Layer, opts Options) *Engine {
	if opts.PreloadTimeout <= 0 {
		opts.PreloadTimeout = 250 * time.Millisecond
	}
	if opts.FrameReadTimeout <= 0 {
		opts.FrameReadTimeout = 500 * time.Millisecond
	}
	if opts.Open == nil {
		opts.Open = func(ctx context.Context, asset *library.Asset) (decode.Source, error) {
			return decode.Open(ctx, asset.Path, asset.Meta)
		}
	}
	return &Engine{
		layer:  layer,
		opts:   opts,
		logger: xglog.WithComponent("playback"),
	}
}

// Preload opens the asset and decodes its first frame without disrupting
// current playback. The whole operation runs under the decode breaker
// with the preload budget as its deadline.
func (e *Engine) Preload(ctx context.Context, asset *library.Asset) (*Handle, error) {
	h := &Handle{ID: uuid.New(), Asset: asset}

	err := e.layer.DoTimeout(ctx, resilience.SubsystemDecode, e.opts.PreloadTimeout, func(ctx context.Context) error {
		src, err := e.opts.Open(ctx, asset)
		if err != nil {
			return fmt.Errorf("open %s: %w", asset.ID, err)
		}
		first, err := src.ReadFrame(ctx)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("first frame of %s: %w", asset.ID, err)
		}
		h.src = src
		h.first = first
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("event", "playback.preloaded").
		Str("media", asset.ID).
		Str("handle_id", h.ID.String()).
		Msg("source warmed")
	return h, nil
}

// SwitchTo requests a transition to the preloaded handle. The request is
// applied atomically at the next frame boundary. Switching to the media
// already playing (or already incoming) is a no-op; the handle is closed
// and the in-flight fade keeps running.
func (e *Engine) SwitchTo(h *Handle, fadeDuration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.targetIDLocked() == h.Asset.ID {
		_ = h.src.Close()
		e.logger.Debug().
			Str("event", "playback.switch_noop").
			Str("media", h.Asset.ID).
			Msg("already playing requested media")
		return
	}

	// A superseding switch abandons the previous pending handle.
	if e.pending != nil {
		_ = e.pending.handle.src.Close()
	}
	e.pending = &pendingSwitch{handle: h, duration: fadeDuration}
}

// targetIDLocked is the media the engine is currently converging on:
// pending beats incoming beats current.
func (e *Engine) targetIDLocked() string {
	switch {
	case e.pending != nil:
		return e.pending.handle.Asset.ID
	case e.incoming != nil:
		return e.incoming.handle.Asset.ID
	case e.current != nil:
		return e.current.handle.Asset.ID
	}
	return ""
}

// Current returns the media id of the source the engine is converging on.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targetIDLocked()
}

// Tick advances decode state and returns the frame to render for now.
// Looping, switch application and crossfade promotion all happen here, at
// the frame boundary, so a torn frame is impossible.
func (e *Engine) Tick(ctx context.Context, now time.Time) (*frame.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyPendingLocked(now)

	if e.current == nil {
		return e.holdLocked()
	}

	out, err := e.advanceLocked(ctx, now, e.current)
	if err != nil {
		return e.holdLocked()
	}

	result := out
	if e.incoming != nil {
		in, err := e.advanceLocked(ctx, now, e.incoming)
		if err == nil {
			alpha := e.fader.Alpha(now)
			result = crossfade.Blend(e.blendBuf, out, in, alpha)
			if result != out && result != in {
				e.blendBuf = result
			}
		}
		if e.fader.Alpha(now) >= 1 {
			e.promoteLocked()
			if err == nil {
				result = in
			}
		}
	}

	e.lastGood = result
	return result, nil
}

// applyPendingLocked installs a requested switch at the frame boundary.
func (e *Engine) applyPendingLocked(now time.Time) {
	if e.pending == nil {
		return
	}
	req := e.pending
	e.pending = nil

	p := &playing{
		handle:   req.handle,
		src:      req.handle.src,
		last:     req.handle.first,
		interval: req.handle.Asset.Meta.FrameInterval(),
		nextAt:   now.Add(req.handle.Asset.Meta.FrameInterval()),
	}

	if e.current == nil || req.duration <= 0 {
		// Straight cut: the incoming source becomes the sole source.
		if e.current != nil {
			_ = e.current.src.Close()
		}
		if e.incoming != nil {
			_ = e.incoming.src.Close()
			e.incoming = nil
		}
		e.current = p
		e.fader.Finish()
		return
	}

	// Superseding an in-flight fade discards the old warming source; the
	// blend restarts from the currently visible output.
	if e.incoming != nil {
		_ = e.incoming.src.Close()
	}
	e.incoming = p
	e.fader.Start(now, req.duration)
}

// promoteLocked completes a fade: the incoming source becomes the sole
// frame source.
func (e *Engine) promoteLocked() {
	if e.current != nil {
		_ = e.current.src.Close()
	}
	e.current = e.incoming
	e.incoming = nil
	e.fader.Finish()

	e.logger.Debug().
		Str("event", "playback.promoted").
		Str("media", e.current.handle.Asset.ID).
		Msg("crossfade complete")
}

// advanceLocked pulls frames from p at its native rate, looping on end of
// stream. Reads run under the decode breaker with a per-call deadline; on
// failure the source's last frame is reused.
func (e *Engine) advanceLocked(ctx context.Context, now time.Time, p *playing) (*frame.Frame, error) {
	if p.last != nil && now.Before(p.nextAt) {
		return p.last, nil
	}

	var f *frame.Frame
	err := e.layer.DoTimeout(ctx, resilience.SubsystemDecode, e.opts.FrameReadTimeout, func(ctx context.Context) error {
		var err error
		f, err = p.src.ReadFrame(ctx)
		if decode.IsEndOfStream(err) {
			e.logger.Debug().
				Str("event", "playback.loop").
				Str("media", p.handle.Asset.ID).
				Msg("end of stream, restarting")
			if err = p.src.Restart(); err != nil {
				return fmt.Errorf("restart %s: %w", p.handle.Asset.ID, err)
			}
			f, err = p.src.ReadFrame(ctx)
		}
		return err
	})
	if err != nil {
		if p.last != nil {
			return p.last, nil
		}
		return nil, err
	}

	p.last = f
	// Schedule relative to the previous deadline to keep the native
	// cadence; resync after a stall instead of bursting.
	p.nextAt = p.nextAt.Add(p.interval)
	if p.nextAt.Before(now) {
		p.nextAt = now.Add(p.interval)
	}
	return f, nil
}

// holdLocked returns the last good frame when no source can produce one.
func (e *Engine) holdLocked() (*frame.Frame, error) {
	metrics.RecordFrameDropped()
	if e.lastGood != nil {
		return e.lastGood, nil
	}
	return nil, ErrNoFrame
}

// Close releases every owned source.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		_ = e.pending.handle.src.Close()
		e.pending = nil
	}
	if e.incoming != nil {
		_ = e.incoming.src.Close()
		e.incoming = nil
	}
	if e.current != nil {
		_ = e.current.src.Close()
		e.current = nil
	}
	return nil
}
