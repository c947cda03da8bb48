// SPDX-License-Identifier: MIT

// Package health aggregates component status into a read-only snapshot.
// The snapshot is logged and published for observability; it never drives
// playback transitions.
package health

import (
	"context"
	"time"

	"github.com/kschult4/Halloween-2025/internal/resilience"
)

// Status represents the overall health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker defines the interface for component health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a function into a named Checker.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) CheckResult
}

func (c CheckerFunc) Name() string                          { return c.CheckerName }
func (c CheckerFunc) Check(ctx context.Context) CheckResult { return c.Fn(ctx) }

// Snapshot is the full health view at one point in time.
type Snapshot struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Breakers      []resilience.BreakerStatus `json:"breakers,omitempty"`
	Checks        map[string]CheckResult     `json:"checks,omitempty"`
}

// Manager collects checkers and the resilience layer into snapshots.
type Manager struct {
	layer    *resilience.Layer
	checkers []Checker
	started  time.Time
}

// NewManager creates a health manager over the given resilience layer.
func NewManager(layer *resilience.Layer) *Manager {
	return &Manager{
		layer:   layer,
		started: time.Now(),
	}
}

// RegisterChecker adds a component health check.
func (m *Manager) RegisterChecker(c Checker) {
	m.checkers = append(m.checkers, c)
}

// Snapshot runs every check and folds in breaker state. An open breaker
// makes the snapshot degraded; an unhealthy check makes it unhealthy.
func (m *Manager) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(m.started).Seconds(),
	}

	if m.layer != nil {
		snap.Breakers = m.layer.Snapshot()
		for _, b := range snap.Breakers {
			if b.State != resilience.StateClosed {
				snap.Status = StatusDegraded
			}
		}
	}

	if len(m.checkers) > 0 {
		snap.Checks = make(map[string]CheckResult, len(m.checkers))
		for _, c := range m.checkers {
			result := c.Check(ctx)
			snap.Checks[c.Name()] = result

			switch result.Status {
			case StatusUnhealthy:
				snap.Status = StatusUnhealthy
			case StatusDegraded:
				if snap.Status == StatusHealthy {
					snap.Status = StatusDegraded
				}
			}
		}
	}

	return snap
}
