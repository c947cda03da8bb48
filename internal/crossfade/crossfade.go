// SPDX-License-Identifier: MIT

// Package crossfade implements timed linear blends between two frame
// sources during a playback switch.
package crossfade

import (
	"time"

	"github.com/google/uuid"

	"github.com/kschult4/Halloween-2025/internal/frame"
	"github.com/kschult4/Halloween-2025/internal/metrics"
)

// Job is one transition in flight. Transient: it exists from switch start
// until the blend completes or a newer transition preempts it.
type Job struct {
	ID       uuid.UUID
	Start    time.Time
	Duration time.Duration
}

// Alpha returns the blend factor at t: 0 is fully outgoing, 1 fully
// incoming. Zero duration is a straight cut.
func (j Job) Alpha(t time.Time) float64 {
	if j.Duration <= 0 {
		return 1
	}
	a := float64(t.Sub(j.Start)) / float64(j.Duration)
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}

// Done reports whether the blend has completed at t.
func (j Job) Done(t time.Time) bool {
	return j.Alpha(t) >= 1
}

// Controller tracks the single active transition. Owned by the render
// path; not safe for concurrent use.
type Controller struct {
	job *Job
}

// Start begins a transition at now. Any in-flight transition is
// superseded: transitions always resolve to the most recent target.
func (c *Controller) Start(now time.Time, duration time.Duration) Job {
	job := Job{ID: uuid.New(), Start: now, Duration: duration}
	c.job = &job
	metrics.RecordCrossfadeStarted()
	return job
}

// Active reports whether a transition is still blending at now.
func (c *Controller) Active(now time.Time) bool {
	return c.job != nil && !c.job.Done(now)
}

// Alpha returns the current blend factor, or 1 when no job is active.
func (c *Controller) Alpha(now time.Time) float64 {
	if c.job == nil {
		return 1
	}
	return c.job.Alpha(now)
}

// Finish clears a completed or superseded job.
func (c *Controller) Finish() {
	c.job = nil
}

// Blend linearly interpolates between the outgoing and incoming frames.
// alpha 0 returns outgoing pixels, alpha 1 incoming. The result reuses
// dst when it matches the incoming dimensions; pass nil to allocate.
func Blend(dst, outgoing, incoming *frame.Frame, alpha float64) *frame.Frame {
	if alpha >= 1 || outgoing == nil {
		return incoming
	}
	if alpha <= 0 {
		return outgoing
	}
	if outgoing.Width != incoming.Width || outgoing.Height != incoming.Height {
		// Mismatched sources blend poorly; cut to the incoming frame.
		return incoming
	}

	if dst == nil || dst.Width != incoming.Width || dst.Height != incoming.Height {
		dst = frame.New(incoming.Width, incoming.Height)
	}
	dst.Timestamp = incoming.Timestamp

	// Fixed-point lerp: out + (in-out)*alpha per channel.
	a := int32(alpha * 256)
	for i := range incoming.Data {
		o := int32(outgoing.Data[i])
		n := int32(incoming.Data[i])
		dst.Data[i] = byte(o + ((n-o)*a)>>8)
	}
	return dst
}
