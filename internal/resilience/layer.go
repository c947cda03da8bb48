// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/kschult4/Halloween-2025/internal/log"
)

// Subsystem names the guarded areas of the pipeline.
type Subsystem string

const (
	SubsystemDecode      Subsystem = "decode"
	SubsystemMessaging   Subsystem = "messaging"
	SubsystemCompositing Subsystem = "compositing"
)

// Fallback is invoked once each time a subsystem's breaker opens. It must
// move the system into its degraded mode (force ambient, hold last frame,
// timeout-only operation) and must not block.
type Fallback func(Subsystem)

// Settings sizes every breaker the layer creates.
type Settings struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
}

// Layer is the cross-cutting resilience wrapper shared by all components.
type Layer struct {
	mu        sync.Mutex
	settings  Settings
	opts      []Option
	breakers  map[Subsystem]*CircuitBreaker
	fallbacks map[Subsystem]Fallback
	lastState map[Subsystem]State
	logger    zerolog.Logger
	started   time.Time
}

// NewLayer creates a resilience layer; breakers are created lazily per
// subsystem with the given settings.
func NewLayer(settings Settings, opts ...Option) *Layer {
	return &Layer{
		settings:  settings,
		opts:      opts,
		breakers:  make(map[Subsystem]*CircuitBreaker),
		fallbacks: make(map[Subsystem]Fallback),
		lastState: make(map[Subsystem]State),
		logger:    xglog.WithComponent("resilience"),
		started:   time.Now(),
	}
}

// OnOpen registers the degraded-mode fallback for a subsystem.
func (l *Layer) OnOpen(sub Subsystem, fb Fallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallbacks[sub] = fb
}

// Breaker returns (creating if needed) the breaker for a subsystem.
func (l *Layer) Breaker(sub Subsystem) *CircuitBreaker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.breakerLocked(sub)
}

func (l *Layer) breakerLocked(sub Subsystem) *CircuitBreaker {
	cb, ok := l.breakers[sub]
	if !ok {
		cb = NewCircuitBreaker(string(sub), l.settings.Threshold, l.settings.Window, l.settings.Cooldown, l.opts...)
		l.breakers[sub] = cb
		l.lastState[sub] = StateClosed
	}
	return cb
}

// Do runs fn under the subsystem's breaker and dispatches the fallback on
// a closed-to-open transition.
func (l *Layer) Do(sub Subsystem, fn func() error) error {
	cb := l.Breaker(sub)
	err := cb.Execute(fn)
	l.dispatchIfTripped(sub, cb)
	return err
}

// DoTimeout is Do with a per-call deadline; expiry counts as a failure.
func (l *Layer) DoTimeout(parent context.Context, sub Subsystem, timeout time.Duration, fn func(ctx context.Context) error) error {
	cb := l.Breaker(sub)
	err := cb.ExecuteTimeout(parent, timeout, fn)
	l.dispatchIfTripped(sub, cb)
	return err
}

func (l *Layer) dispatchIfTripped(sub Subsystem, cb *CircuitBreaker) {
	state := cb.State()

	l.mu.Lock()
	prev := l.lastState[sub]
	l.lastState[sub] = state
	fb := l.fallbacks[sub]
	l.mu.Unlock()

	if state == StateOpen && prev != StateOpen {
		l.logger.Warn().
			Str("event", "resilience.breaker_open").
			Str("subsystem", string(sub)).
			Dur("cooldown", cb.Cooldown()).
			Msg("subsystem breaker opened, entering degraded mode")
		if fb != nil {
			fb(sub)
		}
	}
	if state == StateClosed && prev != StateClosed && prev != "" {
		l.logger.Info().
			Str("event", "resilience.breaker_closed").
			Str("subsystem", string(sub)).
			Msg("subsystem breaker closed, resuming normal operation")
	}
}

// BreakerStatus is the read-only health view of one breaker.
type BreakerStatus struct {
	Subsystem Subsystem     `json:"subsystem"`
	State     State         `json:"state"`
	Failures  int           `json:"recent_failures"`
	Cooldown  time.Duration `json:"cooldown"`
}

// Snapshot reports every breaker's state. Read-only: observability never
// drives transitions.
func (l *Layer) Snapshot() []BreakerStatus {
	l.mu.Lock()
	subs := make([]Subsystem, 0, len(l.breakers))
	for sub := range l.breakers {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })

	statuses := make([]BreakerStatus, 0, len(subs))
	for _, sub := range subs {
		cb := l.Breaker(sub)
		statuses = append(statuses, BreakerStatus{
			Subsystem: sub,
			State:     cb.State(),
			Failures:  cb.FailureCount(),
			Cooldown:  cb.Cooldown(),
		})
	}
	return statuses
}

// Uptime reports time since the layer was constructed.
func (l *Layer) Uptime() time.Duration {
	return time.Since(l.started)
}
