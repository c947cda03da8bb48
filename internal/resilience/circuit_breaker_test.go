// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 10, 31, 18, 0, 0, 0, time.UTC)}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

var errBoom = errors.New("boom")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 3, time.Minute, 10*time.Second, WithClock(clk))

	failN(cb, 2)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 2, cb.FailureCount())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 3, time.Minute, 10*time.Second, WithClock(clk))

	failN(cb, 3)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerWindowExpiresFailures(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 3, time.Minute, 10*time.Second, WithClock(clk))

	failN(cb, 2)
	clk.Advance(2 * time.Minute)
	failN(cb, 1)

	// The first two failures fell out of the window.
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.FailureCount())
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 1, time.Minute, 10*time.Second, WithClock(clk))

	failN(cb, 1)
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(11 * time.Second)
	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.Equal(t, 10*time.Second, cb.Cooldown())
}

func TestBreakerFailedProbeDoublesCooldown(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 1, time.Minute, 10*time.Second, WithClock(clk))

	failN(cb, 1)
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(11 * time.Second)
	failN(cb, 1) // failed probe
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 20*time.Second, cb.Cooldown())

	// The old cooldown is not enough anymore.
	clk.Advance(11 * time.Second)
	assert.False(t, cb.AllowRequest())

	clk.Advance(10 * time.Second)
	assert.True(t, cb.AllowRequest())
}

func TestBreakerCooldownCapped(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 1, time.Minute, 10*time.Second,
		WithClock(clk), WithMaxCooldown(30*time.Second))

	failN(cb, 1)
	for i := 0; i < 5; i++ {
		clk.Advance(10 * time.Minute)
		failN(cb, 1)
	}
	assert.Equal(t, 30*time.Second, cb.Cooldown())
}

func TestBreakerSingleProbeHalfOpen(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 1, time.Minute, 10*time.Second, WithClock(clk))

	failN(cb, 1)
	clk.Advance(11 * time.Second)

	assert.True(t, cb.AllowRequest()) // probe slot taken
	assert.False(t, cb.AllowRequest())
	assert.False(t, cb.AllowRequest())
}

func TestExecuteTimeoutCountsAsFailure(t *testing.T) {
	clk := newMockClock()
	cb := NewCircuitBreaker("decode", 2, time.Minute, 10*time.Second, WithClock(clk))

	err := cb.ExecuteTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 1, cb.FailureCount())
}

func TestLayerFallbackFiresOncePerTrip(t *testing.T) {
	clk := newMockClock()
	layer := NewLayer(Settings{Threshold: 1, Window: time.Minute, Cooldown: 10 * time.Second},
		WithClock(clk))

	var calls []Subsystem
	layer.OnOpen(SubsystemDecode, func(sub Subsystem) {
		calls = append(calls, sub)
	})

	_ = layer.Do(SubsystemDecode, func() error { return errBoom })
	require.Equal(t, []Subsystem{SubsystemDecode}, calls)

	// Further rejected calls do not re-fire the fallback.
	_ = layer.Do(SubsystemDecode, func() error { return errBoom })
	_ = layer.Do(SubsystemDecode, func() error { return errBoom })
	assert.Len(t, calls, 1)

	// Recovery then a second trip fires it again.
	clk.Advance(11 * time.Second)
	require.NoError(t, layer.Do(SubsystemDecode, func() error { return nil }))
	_ = layer.Do(SubsystemDecode, func() error { return errBoom })
	assert.Len(t, calls, 2)
}

func TestLayerSnapshotSorted(t *testing.T) {
	layer := NewLayer(Settings{Threshold: 5, Window: time.Minute, Cooldown: time.Second})

	_ = layer.Do(SubsystemMessaging, func() error { return nil })
	_ = layer.Do(SubsystemDecode, func() error { return nil })
	_ = layer.Do(SubsystemCompositing, func() error { return nil })

	snap := layer.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, SubsystemCompositing, snap[0].Subsystem)
	assert.Equal(t, SubsystemDecode, snap[1].Subsystem)
	assert.Equal(t, SubsystemMessaging, snap[2].Subsystem)
}
