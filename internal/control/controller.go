// SPDX-License-Identifier: MIT

// Package control implements the playback state machine: AMBIENT and
// ACTIVE, driven by external commands, the ambient timeout, and breaker
// fallbacks. It decides what plays; the playback engine decides how.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kschult4/Halloween-2025/internal/command"
	"github.com/kschult4/Halloween-2025/internal/config"
	"github.com/kschult4/Halloween-2025/internal/library"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/metrics"
	"github.com/kschult4/Halloween-2025/internal/playback"
)

// State is the controller's coarse playback state.
type State string

const (
	StateAmbient State = "ambient"
	StateActive  State = "active"
)

// Engine is the slice of the playback engine the controller drives.
type Engine interface {
	Preload(ctx context.Context, asset *library.Asset) (*playback.Handle, error)
	SwitchTo(h *playback.Handle, fadeDuration time.Duration)
	Current() string
}

// Resolver is the slice of the media library the controller needs.
type Resolver interface {
	Resolve(id string, category library.Category) (*library.Asset, error)
	Fallback(category library.Category) (*library.Asset, error)
}

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Snapshot is the controller's externally visible state.
type Snapshot struct {
	State         State     `json:"state"`
	Media         string    `json:"media"`
	LastCommandAt time.Time `json:"last_command_at"`
}

// transition is a decided state change waiting out the buffer delay.
type transition struct {
	state   State
	asset   *library.Asset
	trigger string
	dueAt   time.Time
}

// preloadRetryDelay spaces out re-attempts of a committed transition
// whose warming decode failed, e.g. while the decode breaker is open.
const preloadRetryDelay = time.Second

// Controller owns the state machine. HandleCommand and Tick run on the
// render loop; ForceAmbient may arrive from a breaker callback, so all
// state is mutex-guarded.
type Controller struct {
	engine Engine
	lib    Resolver
	cfg    config.Config
	clk    clock
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	media     string
	lastCmdAt time.Time
	pending   *transition
	switchSeq uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects a fake clock for tests.
func WithClock(c clock) Option {
	return func(ctl *Controller) { ctl.clk = c }
}

// New creates a controller in AMBIENT state with no media selected; call
// Start to pick the initial ambient clip.
func New(engine Engine, lib Resolver, cfg config.Config, opts ...Option) *Controller {
	ctl := &Controller{
		engine: engine,
		lib:    lib,
		cfg:    cfg,
		clk:    realClock{},
		logger: xglog.WithComponent("control"),
		state:  StateAmbient,
	}
	for _, o := range opts {
		o(ctl)
	}
	return ctl
}

// Start selects the initial ambient media via the fallback strategy and
// begins playing it immediately. Startup never waits for an external
// command.
func (c *Controller) Start(ctx context.Context) error {
	asset, err := c.lib.Fallback(library.CategoryAmbient)
	if err != nil {
		return err
	}

	h, err := c.engine.Preload(ctx, asset)
	if err != nil {
		return err
	}
	c.engine.SwitchTo(h, 0)

	c.mu.Lock()
	now := c.clk.Now()
	c.state = StateAmbient
	c.media = asset.ID
	c.lastCmdAt = now
	c.mu.Unlock()

	c.logger.Info().
		Str("event", "control.started").
		Str("media", asset.ID).
		Msg("initial ambient playback")
	return nil
}

// HandleCommand applies one parsed command to the state machine.
// Heartbeats are recognized and ignored; they neither transition nor
// defer the ambient timeout.
func (c *Controller) HandleCommand(cmd command.Command) {
	if cmd.Kind == command.KindHeartbeat {
		metrics.RecordCommand("heartbeat")
		c.logger.Trace().
			Str("event", "control.heartbeat").
			Msg("heartbeat ignored")
		return
	}
	metrics.RecordCommand("state_change")

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.lastCmdAt = now

	switch cmd.State {
	case command.StateActive:
		c.handleActiveLocked(cmd, now)
	case command.StateAmbient:
		c.handleAmbientLocked(cmd, now)
	}
}

func (c *Controller) handleActiveLocked(cmd command.Command, now time.Time) {
	var (
		asset *library.Asset
		err   error
	)
	switch {
	case cmd.Media != "":
		asset, err = c.lib.Resolve(cmd.Media, library.CategoryActive)
		if errors.Is(err, library.ErrNotFound) {
			c.logger.Info().
				Str("event", "control.resolve_miss").
				Str("media", cmd.Media).
				Msg("unknown media, using active fallback")
			asset, err = c.lib.Fallback(library.CategoryActive)
		}
	case c.cfg.LocalSelection:
		asset, err = c.lib.Fallback(library.CategoryActive)
	default:
		c.logger.Warn().
			Str("event", "control.no_media").
			Msg("active command without media and local selection disabled")
		return
	}
	if err != nil {
		c.emptyCategoryLocked(library.CategoryActive, err)
		return
	}
	c.scheduleLocked(StateActive, asset, "command", now)
}

func (c *Controller) handleAmbientLocked(cmd command.Command, now time.Time) {
	var (
		asset *library.Asset
		err   error
	)
	if cmd.Media != "" {
		asset, err = c.lib.Resolve(cmd.Media, library.CategoryAmbient)
		if errors.Is(err, library.ErrNotFound) {
			asset, err = c.lib.Fallback(library.CategoryAmbient)
		}
	} else {
		asset, err = c.lib.Fallback(library.CategoryAmbient)
	}
	if err != nil {
		c.emptyCategoryLocked(library.CategoryAmbient, err)
		return
	}
	c.scheduleLocked(StateAmbient, asset, "command", now)
}

// emptyCategoryLocked applies the configured policy when fallback finds
// nothing to play. Both policies hold current playback at runtime; strict
// only changes startup behavior, which the app layer enforces.
func (c *Controller) emptyCategoryLocked(cat library.Category, err error) {
	c.logger.Error().
		Err(err).
		Str("event", "control.empty_category").
		Str("category", string(cat)).
		Str("policy", string(c.cfg.EmptyCategory)).
		Msg("no media available, holding current playback")
}

// scheduleLocked queues a transition behind the state-change buffer.
// A later decision replaces an earlier one still waiting.
func (c *Controller) scheduleLocked(target State, asset *library.Asset, trigger string, now time.Time) {
	// Re-commanding what is already showing must not restart the fade.
	if c.pending == nil && c.state == target && c.engine.Current() == asset.ID {
		c.logger.Debug().
			Str("event", "control.noop").
			Str("media", asset.ID).
			Msg("already playing requested media")
		return
	}

	c.pending = &transition{
		state:   target,
		asset:   asset,
		trigger: trigger,
		dueAt:   now.Add(c.cfg.StateChangeBuffer()),
	}
	if c.cfg.StateChangeBuffer() <= 0 {
		c.applyLocked(now)
	}
}

// Tick drives time-based behavior: due buffered transitions and the
// ambient timeout. Called once per frame by the render loop.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()

	if c.pending != nil && !now.Before(c.pending.dueAt) {
		c.applyLocked(now)
	}

	// Sole time-driven transition: ACTIVE with no command for the
	// configured timeout falls back to ambient.
	if c.state == StateActive && c.pending == nil &&
		now.Sub(c.lastCmdAt) >= c.cfg.AmbientTimeout() {
		asset, err := c.lib.Fallback(library.CategoryAmbient)
		if err != nil {
			c.emptyCategoryLocked(library.CategoryAmbient, err)
			// Push the deadline out so the failure is not re-logged
			// every tick.
			c.lastCmdAt = now
			return
		}
		c.logger.Info().
			Str("event", "control.timeout").
			Str("media", asset.ID).
			Dur("idle", now.Sub(c.lastCmdAt)).
			Msg("ambient timeout reached")
		c.pending = &transition{state: StateAmbient, asset: asset, trigger: "timeout", dueAt: now}
		c.applyLocked(now)
	}
}

// applyLocked commits the pending transition: controller state changes
// now, and the engine switch follows once the warming decode finishes.
func (c *Controller) applyLocked(now time.Time) {
	t := c.pending
	c.pending = nil

	old := c.state
	c.state = t.state
	c.media = t.asset.ID
	c.switchSeq++
	seq := c.switchSeq

	c.logger.Info().
		Str("event", "control.transition").
		Str("old_state", string(old)).
		Str("new_state", string(t.state)).
		Str("media", t.asset.ID).
		Str("trigger", t.trigger).
		Msg("state transition")
	metrics.RecordPlaybackSwitch(t.trigger)
	metrics.ObserveSwitchLatency(c.clk.Now().Sub(now).Seconds())

	fade := c.cfg.CrossfadeDuration()
	asset := t.asset
	target := t.state
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PreloadTimeout()+c.cfg.FrameReadTimeout())
		defer cancel()
		h, err := c.engine.Preload(ctx, asset)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("event", "control.preload_failed").
				Str("media", asset.ID).
				Msg("could not warm source")
			// The committed state now disagrees with what the engine is
			// showing. Re-queue the switch until it takes or a newer
			// transition lands.
			c.mu.Lock()
			if seq == c.switchSeq && c.pending == nil {
				c.pending = &transition{
					state:   target,
					asset:   asset,
					trigger: "retry",
					dueAt:   c.clk.Now().Add(preloadRetryDelay),
				}
			}
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		stale := seq != c.switchSeq
		c.mu.Unlock()
		if stale {
			// A later transition superseded this one while warming.
			c.engineDiscard(h)
			return
		}
		c.engine.SwitchTo(h, fade)
	}()
}

func (c *Controller) engineDiscard(h *playback.Handle) {
	// SwitchTo with the current target is a no-op that closes the handle,
	// but a superseded handle must be released explicitly.
	h.Discard()
}

// ForceAmbient is the decode-breaker fallback: drop to ambient
// immediately, bypassing the state-change buffer.
func (c *Controller) ForceAmbient(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()

	if c.state == StateAmbient && c.pending == nil {
		return
	}
	asset, err := c.lib.Fallback(library.CategoryAmbient)
	if err != nil {
		c.emptyCategoryLocked(library.CategoryAmbient, err)
		return
	}
	c.logger.Warn().
		Str("event", "control.forced_ambient").
		Str("reason", reason).
		Msg("forcing ambient playback")
	c.pending = &transition{state: StateAmbient, asset: asset, trigger: "breaker", dueAt: now}
	c.applyLocked(now)
}

// StateLabel returns the current state as a metrics label.
func (c *Controller) StateLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.state)
}

// Snapshot returns the current state for health reporting.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Media: c.media, LastCommandAt: c.lastCmdAt}
}
