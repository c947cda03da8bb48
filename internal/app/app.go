// SPDX-License-Identifier: MIT

// Package app assembles the daemon: library, masks, playback engine,
// state controller, render loop, MQTT bus and health reporting, all
// sharing one resilience layer.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kschult4/Halloween-2025/internal/config"
	"github.com/kschult4/Halloween-2025/internal/control"
	"github.com/kschult4/Halloween-2025/internal/decode"
	"github.com/kschult4/Halloween-2025/internal/health"
	"github.com/kschult4/Halloween-2025/internal/library"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/masks"
	"github.com/kschult4/Halloween-2025/internal/mqttbus"
	"github.com/kschult4/Halloween-2025/internal/playback"
	"github.com/kschult4/Halloween-2025/internal/render"
	"github.com/kschult4/Halloween-2025/internal/resilience"
)

// App is the assembled daemon.
type App struct {
	cfg    config.Config
	logger zerolog.Logger

	layer  *resilience.Layer
	lib    *library.Library
	masks  *masks.Store
	engine *playback.Engine
	ctl    *control.Controller
	cell   *control.Cell
	bus    *mqttbus.Bus
	hm     *health.Manager
	loop   *render.Loop
	out    render.Output
}

// New wires the daemon. Integrity failures here (corrupt mask file,
// a library with no ambient media) are fatal: the caller exits with the
// returned diagnostic.
func New(ctx context.Context, cfg config.Config, out render.Output) (*App, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if out == nil {
		out = render.Discard{}
	}

	a := &App{
		cfg:    cfg,
		logger: xglog.WithComponent("app"),
		out:    out,
	}

	a.layer = resilience.NewLayer(resilience.Settings{
		Threshold: cfg.BreakerThreshold,
		Window:    cfg.BreakerWindow(),
		Cooldown:  cfg.BreakerCooldown(),
	})
	a.hm = health.NewManager(a.layer)

	store, err := masks.NewStore(cfg.MaskPath)
	if err != nil {
		return nil, fmt.Errorf("mask file %s: %w", cfg.MaskPath, err)
	}
	a.masks = store

	a.lib = library.New(cfg.Fallback, library.WithFrameGrabber(decode.FirstFrame))
	counts, err := a.lib.Reload(ctx, cfg.MediaRoot)
	if err != nil {
		// No ambient media means nothing to show, under either
		// empty-category policy. Runtime reloads degrade instead.
		return nil, fmt.Errorf("media library %s: %w", cfg.MediaRoot, err)
	}
	if cfg.EmptyCategory == config.EmptyCategoryStrict && counts[library.CategoryActive] == 0 {
		return nil, fmt.Errorf("media library %s: no active media (strict empty-category policy)", cfg.MediaRoot)
	}
	a.logger.Info().
		Str("event", "app.library_loaded").
		Int("active", counts[library.CategoryActive]).
		Int("ambient", counts[library.CategoryAmbient]).
		Msg("media library scanned")

	a.engine = playback.NewEngine(a.layer, playback.Options{
		PreloadTimeout:   cfg.PreloadTimeout(),
		FrameReadTimeout: cfg.FrameReadTimeout(),
	})
	a.ctl = control.New(a.engine, a.lib, cfg)
	a.cell = &control.Cell{}
	a.bus = mqttbus.New(cfg.MQTT, a.cell, a.layer, a.hm, cfg.StatusInterval())

	a.layer.OnOpen(resilience.SubsystemDecode, func(sub resilience.Subsystem) {
		a.ctl.ForceAmbient(string(sub) + " breaker open")
	})
	// Messaging degradation needs no action: with the breaker open no
	// commands reach the mailbox and the ambient timeout takes over.
	// Compositing fallback lives in the render loop (unwarped frames).

	a.loop = render.NewLoop(render.LoopConfig{
		Interval: cfg.TickInterval(),
		Mailbox:  a.cell,
		Control:  a.ctl,
		Source:   a.engine,
		Comp:     render.NewCompositor(cfg.DisplayWidth, cfg.DisplayHeight),
		Masks:    a.masks,
		Output:   out,
		Layer:    a.layer,
	})

	a.registerCheckers()
	return a, nil
}

func (a *App) registerCheckers() {
	a.hm.RegisterChecker(health.CheckerFunc{
		CheckerName: "mqtt",
		Fn: func(ctx context.Context) health.CheckResult {
			if a.bus.Connected() {
				return health.CheckResult{Status: health.StatusHealthy, Message: "connected"}
			}
			return health.CheckResult{Status: health.StatusDegraded, Message: "broker unreachable"}
		},
	})
	a.hm.RegisterChecker(health.CheckerFunc{
		CheckerName: "library",
		Fn: func(ctx context.Context) health.CheckResult {
			c := a.lib.Counts()
			detail := fmt.Sprintf("active=%d ambient=%d",
				c[library.CategoryActive], c[library.CategoryAmbient])
			if c[library.CategoryAmbient] == 0 {
				return health.CheckResult{Status: health.StatusUnhealthy, Message: detail}
			}
			if c[library.CategoryActive] == 0 {
				s := health.StatusDegraded
				if a.cfg.EmptyCategory == config.EmptyCategoryStrict {
					s = health.StatusUnhealthy
				}
				return health.CheckResult{Status: s, Message: detail}
			}
			return health.CheckResult{Status: health.StatusHealthy, Message: detail}
		},
	})
	a.hm.RegisterChecker(health.CheckerFunc{
		CheckerName: "playback",
		Fn: func(ctx context.Context) health.CheckResult {
			s := a.ctl.Snapshot()
			return health.CheckResult{
				Status:  health.StatusHealthy,
				Message: fmt.Sprintf("state=%s media=%s", s.State, s.Media),
			}
		},
	})
}

// Run starts every goroutine and blocks until ctx is canceled or a
// component fails unrecoverably. The render loop outlives individual
// subsystem failures; only wiring-level errors end the run.
func (a *App) Run(ctx context.Context) error {
	if err := a.ctl.Start(ctx); err != nil {
		return fmt.Errorf("initial playback: %w", err)
	}
	if err := a.bus.Connect(ctx); err != nil {
		// Transient transport trouble; the show must go on without it.
		a.logger.Warn().
			Err(err).
			Str("event", "app.mqtt_unavailable").
			Msg("running without command channel")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(ctx) })
	g.Go(func() error { return a.bus.Run(ctx) })
	g.Go(func() error { return a.masks.StartWatcher(ctx) })
	g.Go(func() error { return a.lib.StartWatcher(ctx, a.cfg.MediaRoot) })

	a.logger.Info().
		Str("event", "app.started").
		Str("broker", a.cfg.MQTT.Broker).
		Str("topic", a.cfg.MQTT.Topic).
		Dur("tick", a.cfg.TickInterval()).
		Msg("projection daemon running")

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	if err := a.engine.Close(); err != nil {
		a.logger.Warn().Err(err).Str("event", "app.shutdown").Msg("engine close")
	}
	if err := a.out.Close(); err != nil {
		a.logger.Warn().Err(err).Str("event", "app.shutdown").Msg("output close")
	}
	a.logger.Info().
		Str("event", "app.stopped").
		Dur("uptime", a.layer.Uptime()).
		Msg("projection daemon stopped")
}

// Health exposes the health manager for external probes.
func (a *App) Health() *health.Manager { return a.hm }

// Uptime reports how long the resilience layer has been alive.
func (a *App) Uptime() time.Duration { return a.layer.Uptime() }
