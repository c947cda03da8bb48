// SPDX-License-Identifier: MIT

// Package resilience wraps every fallible pipeline operation in a
// per-subsystem circuit breaker so a failing decoder, message bus or
// compositor degrades the display instead of crashing it.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kschult4/Halloween-2025/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker gates calls into one subsystem. Failures are counted in
// a sliding window; crossing the threshold opens the breaker. After the
// cooldown one probe is allowed (half-open); a failed probe reopens with
// a doubled cooldown, capped.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	state       State
	window      time.Duration
	threshold   int
	cooldown    time.Duration // current, grows on failed probes
	minCooldown time.Duration
	maxCooldown time.Duration
	openedAt    time.Time
	failures    []time.Time // failure timestamps within the window
	probing     bool        // a half-open probe is in flight
	clock       clock
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock injects a fake clock for tests.
func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithMaxCooldown caps the exponential cooldown growth.
func WithMaxCooldown(d time.Duration) Option {
	return func(cb *CircuitBreaker) { cb.maxCooldown = d }
}

// NewCircuitBreaker creates a breaker for the named subsystem.
func NewCircuitBreaker(name string, threshold int, window, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:        name,
		state:       StateClosed,
		window:      window,
		threshold:   threshold,
		cooldown:    cooldown,
		minCooldown: cooldown,
		maxCooldown: 8 * cooldown,
		clock:       realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetCircuitBreakerState(cb.name, string(cb.state))
	return cb
}

// Name returns the subsystem name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn under the breaker. When the breaker is open it returns
// ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowRequest() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// ExecuteTimeout runs fn with a deadline; expiry counts as a failure.
// fn must honor ctx, otherwise it is abandoned but still charged.
func (cb *CircuitBreaker) ExecuteTimeout(parent context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	return cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return fn(ctx)
	})
}

// AllowRequest reports whether a call may proceed, moving OPEN to
// HALF_OPEN when the cooldown has elapsed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.pruneLocked()
		return true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) > cb.cooldown {
			cb.transitionTo(StateHalfOpen)
			cb.probing = true
			return true
		}
		return false
	default: // StateHalfOpen: one probe at a time
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
}

// RecordFailure charges one failure against the subsystem.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()

	if cb.state == StateHalfOpen {
		// Failed probe: reopen and extend the cooldown.
		cb.probing = false
		cb.cooldown = minDuration(cb.cooldown*2, cb.maxCooldown)
		metrics.RecordCircuitBreakerTrip(cb.name, "half_open_failure")
		cb.transitionTo(StateOpen)
		return
	}

	cb.failures = append(cb.failures, now)
	cb.pruneLocked()

	if cb.state == StateClosed && len(cb.failures) >= cb.threshold {
		metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
		cb.transitionTo(StateOpen)
	}
}

// RecordSuccess clears the failure window and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = cb.failures[:0]
	cb.probing = false
	if cb.state != StateClosed {
		cb.cooldown = cb.minCooldown
		cb.transitionTo(StateClosed)
	}
}

// pruneLocked drops failures older than the sliding window.
// Caller must hold lock.
func (cb *CircuitBreaker) pruneLocked() {
	cutoff := cb.clock.Now().Add(-cb.window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
}

// transitionTo handles state transitions and updates metrics.
// Caller must hold lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	if newState == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.name, string(newState))
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the failures currently inside the window.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.pruneLocked()
	return len(cb.failures)
}

// Cooldown returns the current cooldown interval.
func (cb *CircuitBreaker) Cooldown() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.cooldown
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
