// SPDX-License-Identifier: MIT

// Package config holds the playback parameter surface. A loaded Config is
// an immutable snapshot: runtime adjustments produce a new value, never an
// in-place mutation observed by the pipeline.
package config

import (
	"fmt"
	"time"
)

// FallbackStrategy selects how a replacement asset is picked when an exact
// identifier is unavailable.
type FallbackStrategy string

const (
	FallbackFirst      FallbackStrategy = "first"       // deterministic lexical first
	FallbackRoundRobin FallbackStrategy = "round_robin" // rotating pointer across calls
	FallbackRandom     FallbackStrategy = "random"      // uniform choice
)

// EmptyCategoryPolicy decides what happens when a fallback selection hits a
// category with zero assets at runtime.
type EmptyCategoryPolicy string

const (
	// EmptyCategoryHold keeps the current playback running and logs the
	// miss. Default: an unattended display should never go dark over a
	// missing folder.
	EmptyCategoryHold EmptyCategoryPolicy = "hold"
	// EmptyCategoryStrict treats an empty category as fatal at startup and
	// as a degraded hold at runtime.
	EmptyCategoryStrict EmptyCategoryPolicy = "strict"
)

// Clamp bounds for the tunable durations.
const (
	MinCrossfade = 0
	MaxCrossfade = 5000 * time.Millisecond
	MinBuffer    = 0
	MaxBuffer    = 10000 * time.Millisecond
	MinTimeout   = 10 * time.Second
	MaxTimeout   = 300 * time.Second
)

// Config is the JSON-serializable parameter surface consumed read-only by
// the core. Durations are persisted as milliseconds to stay compatible
// with the settings file the tuning UI writes.
type Config struct {
	MediaRoot string `json:"media_root"`
	MaskPath  string `json:"mask_path"`

	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`

	CrossfadeDurationMS int  `json:"crossfade_duration_ms"`
	StateChangeBufferMS int  `json:"state_change_buffer_ms"`
	AmbientTimeoutSec   int  `json:"mqtt_timeout_seconds"`
	DisplayFPS          int  `json:"display_fps"`
	PreloadTimeoutMS    int  `json:"preload_timeout_ms"`
	FrameReadTimeoutMS  int  `json:"frame_read_timeout_ms"`
	BreakerThreshold    int  `json:"breaker_threshold"`
	BreakerWindowSec    int  `json:"breaker_window_seconds"`
	BreakerCooldownSec  int  `json:"breaker_cooldown_seconds"`
	StatusIntervalSec   int  `json:"status_interval_seconds"`
	LocalSelection      bool `json:"local_selection"`
	LoopEnabled         bool `json:"loop_enabled"`

	Fallback      FallbackStrategy    `json:"fallback_strategy"`
	EmptyCategory EmptyCategoryPolicy `json:"empty_category_policy"`

	MQTT MQTTConfig `json:"mqtt"`

	LogLevel string `json:"log_level"`
}

// MQTTConfig addresses the inbound command channel.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

// Default returns the built-in settings, matching the values the display
// has been tuned with.
func Default() Config {
	return Config{
		MediaRoot:           "media",
		MaskPath:            "config/masks.json",
		DisplayWidth:        1920,
		DisplayHeight:       1080,
		CrossfadeDurationMS: 200,
		StateChangeBufferMS: 250,
		AmbientTimeoutSec:   60,
		DisplayFPS:          30,
		PreloadTimeoutMS:    250,
		FrameReadTimeoutMS:  500,
		BreakerThreshold:    5,
		BreakerWindowSec:    300,
		BreakerCooldownSec:  30,
		StatusIntervalSec:   30,
		LocalSelection:      false,
		LoopEnabled:         true,
		Fallback:            FallbackFirst,
		EmptyCategory:       EmptyCategoryHold,
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "projection-mapper",
			Topic:    "halloween/playback",
		},
		LogLevel: "info",
	}
}

// CrossfadeDuration returns the clamped crossfade duration.
func (c Config) CrossfadeDuration() time.Duration {
	return clampDuration(time.Duration(c.CrossfadeDurationMS)*time.Millisecond, MinCrossfade, MaxCrossfade)
}

// StateChangeBuffer returns the clamped start-delay applied before a
// commanded switch.
func (c Config) StateChangeBuffer() time.Duration {
	return clampDuration(time.Duration(c.StateChangeBufferMS)*time.Millisecond, MinBuffer, MaxBuffer)
}

// AmbientTimeout returns the clamped no-command timeout.
func (c Config) AmbientTimeout() time.Duration {
	return clampDuration(time.Duration(c.AmbientTimeoutSec)*time.Second, MinTimeout, MaxTimeout)
}

// PreloadTimeout bounds a decode open + first frame.
func (c Config) PreloadTimeout() time.Duration {
	if c.PreloadTimeoutMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.PreloadTimeoutMS) * time.Millisecond
}

// FrameReadTimeout bounds a single frame read.
func (c Config) FrameReadTimeout() time.Duration {
	if c.FrameReadTimeoutMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.FrameReadTimeoutMS) * time.Millisecond
}

// TickInterval derives the render cadence from the display frame rate.
func (c Config) TickInterval() time.Duration {
	fps := c.DisplayFPS
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}

// BreakerWindow returns the sliding failure window.
func (c Config) BreakerWindow() time.Duration {
	if c.BreakerWindowSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.BreakerWindowSec) * time.Second
}

// BreakerCooldown returns the initial open-state cooldown.
func (c Config) BreakerCooldown() time.Duration {
	if c.BreakerCooldownSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.BreakerCooldownSec) * time.Second
}

// StatusInterval returns the health publish cadence.
func (c Config) StatusInterval() time.Duration {
	if c.StatusIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StatusIntervalSec) * time.Second
}

// Validate rejects values the pipeline cannot run with. Clampable values
// are not errors; they are clamped by the accessors above.
func (c Config) Validate() error {
	switch c.Fallback {
	case FallbackFirst, FallbackRoundRobin, FallbackRandom:
	case "":
	default:
		return fmt.Errorf("unknown fallback strategy %q", c.Fallback)
	}
	switch c.EmptyCategory {
	case EmptyCategoryHold, EmptyCategoryStrict, "":
	default:
		return fmt.Errorf("unknown empty category policy %q", c.EmptyCategory)
	}
	if c.MediaRoot == "" {
		return fmt.Errorf("media_root must be set")
	}
	if c.MaskPath == "" {
		return fmt.Errorf("mask_path must be set")
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt topic must be set")
	}
	return nil
}

// Normalized returns a copy with empty enums replaced by their defaults.
func (c Config) Normalized() Config {
	if c.Fallback == "" {
		c.Fallback = FallbackFirst
	}
	if c.EmptyCategory == "" {
		c.EmptyCategory = EmptyCategoryHold
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "projection-mapper"
	}
	if c.DisplayWidth <= 0 {
		c.DisplayWidth = 1920
	}
	if c.DisplayHeight <= 0 {
		c.DisplayHeight = 1080
	}
	return c
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
