// SPDX-License-Identifier: MIT

// Package metrics registers the prometheus collectors shared by the
// playback pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_frames_rendered_total",
		Help: "Frames composited and presented to the output surface",
	}, []string{"state"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projection_frames_dropped_total",
		Help: "Render ticks that produced no frame (decode stall or breaker open)",
	})

	playbackSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_playback_switches_total",
		Help: "Playback source switches by trigger",
	}, []string{"trigger"})

	switchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "projection_switch_latency_seconds",
		Help:    "Latency from command receipt to playback switch start",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	commandsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_commands_received_total",
		Help: "Inbound commands by kind (state_change, heartbeat, malformed)",
	}, []string{"kind"})

	libraryAssets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "projection_library_assets",
		Help: "Playable assets indexed per category",
	}, []string{"category"})

	crossfadesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projection_crossfades_started_total",
		Help: "Crossfade transitions started",
	})
)

// RecordFrameRendered counts one presented frame for the given playback state.
func RecordFrameRendered(state string) {
	framesRendered.WithLabelValues(state).Inc()
}

// RecordFrameDropped counts a render tick that yielded no frame.
func RecordFrameDropped() {
	framesDropped.Inc()
}

// RecordPlaybackSwitch counts a playback switch by its trigger
// (command, fallback, timeout).
func RecordPlaybackSwitch(trigger string) {
	playbackSwitches.WithLabelValues(trigger).Inc()
}

// ObserveSwitchLatency records command-to-switch latency.
func ObserveSwitchLatency(seconds float64) {
	switchLatency.Observe(seconds)
}

// RecordCommand counts an inbound command by kind.
func RecordCommand(kind string) {
	commandsReceived.WithLabelValues(kind).Inc()
}

// SetLibraryAssets records the indexed asset count for a category.
func SetLibraryAssets(category string, n int) {
	libraryAssets.WithLabelValues(category).Set(float64(n))
}

// RecordCrossfadeStarted counts a started crossfade transition.
func RecordCrossfadeStarted() {
	crossfadesStarted.Inc()
}
