// SPDX-License-Identifier: MIT

package render

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kschult4/Halloween-2025/internal/command"
	"github.com/kschult4/Halloween-2025/internal/frame"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/masks"
	"github.com/kschult4/Halloween-2025/internal/metrics"
	"github.com/kschult4/Halloween-2025/internal/playback"
	"github.com/kschult4/Halloween-2025/internal/resilience"
)

// Mailbox is the command slot the loop drains once per frame.
type Mailbox interface {
	Take() (command.Command, bool)
}

// Controller is the slice of the state machine the loop drives each tick.
type Controller interface {
	HandleCommand(cmd command.Command)
	Tick(ctx context.Context)
	StateLabel() string
}

// FrameSource produces the frame to display for a given instant.
type FrameSource interface {
	Tick(ctx context.Context, now time.Time) (*frame.Frame, error)
}

// MaskSource provides the current warp geometry.
type MaskSource interface {
	Snapshot() *masks.Set
}

// Loop is the render loop: the single goroutine that owns the compositor
// and the crossfade, pacing everything at the display tick interval.
type Loop struct {
	interval time.Duration
	mailbox  Mailbox
	ctl      Controller
	source   FrameSource
	comp     *Compositor
	masks    MaskSource
	out      Output
	layer    *resilience.Layer
	logger   zerolog.Logger
}

// LoopConfig wires a Loop.
type LoopConfig struct {
	Interval time.Duration
	Mailbox  Mailbox
	Control  Controller
	Source   FrameSource
	Comp     *Compositor
	Masks    MaskSource
	Output   Output
	Layer    *resilience.Layer
}

// NewLoop builds the render loop.
func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		interval: cfg.Interval,
		mailbox:  cfg.Mailbox,
		ctl:      cfg.Control,
		source:   cfg.Source,
		comp:     cfg.Comp,
		masks:    cfg.Masks,
		out:      cfg.Output,
		layer:    cfg.Layer,
		logger:   xglog.WithComponent("render"),
	}
}

// Run drives frames until ctx is canceled. Per-frame failures are
// absorbed: a frame that cannot be produced or presented is skipped, the
// loop itself never exits on error.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().
		Str("event", "render.started").
		Dur("interval", l.interval).
		Msg("render loop running")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().
				Str("event", "render.stopped").
				Msg("render loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			l.frame(ctx, now)
		}
	}
}

// frame produces and presents exactly one frame.
func (l *Loop) frame(ctx context.Context, now time.Time) {
	// At most one command per frame; bursts collapsed by the mailbox.
	if cmd, ok := l.mailbox.Take(); ok {
		l.ctl.HandleCommand(cmd)
	}
	l.ctl.Tick(ctx)

	src, err := l.source.Tick(ctx, now)
	if err != nil {
		if !errors.Is(err, playback.ErrNoFrame) {
			l.logger.Warn().
				Err(err).
				Str("event", "render.no_frame").
				Msg("no frame this tick")
		}
		return
	}

	out := l.composite(src)

	if err := l.out.Present(out); err != nil {
		l.logger.Warn().
			Err(err).
			Str("event", "render.present_failed").
			Msg("output rejected frame")
		metrics.RecordFrameDropped()
		return
	}
	metrics.RecordFrameRendered(l.ctl.StateLabel())
}

// composite warps the source through the mask set under the compositing
// breaker. When the breaker is open, or the warp fails, the source frame
// passes through unwarped so the show keeps running.
func (l *Loop) composite(src *frame.Frame) *frame.Frame {
	var warped *frame.Frame
	err := l.layer.Do(resilience.SubsystemCompositing, func() error {
		var err error
		warped, err = l.comp.Render(src, l.masks.Snapshot())
		return err
	})
	if err != nil {
		return src
	}
	return warped
}
