// SPDX-License-Identifier: MIT

// Package command parses inbound control messages into a tagged variant.
// The message shape is inspected exactly once, here; downstream code
// switches on Kind and never re-examines raw fields.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tags the parsed variant.
type Kind int

const (
	// KindHeartbeat marks a status message without a state field. It is
	// recognized and ignored for transition purposes by contract.
	KindHeartbeat Kind = iota
	// KindStateChange carries a playback state and optional media id.
	KindStateChange
)

// TargetState is the commanded playback category.
type TargetState string

const (
	StateActive  TargetState = "active"
	StateAmbient TargetState = "ambient"
)

var ErrInvalidState = errors.New("invalid state field")

// Command is the parse result delivered to the state controller.
type Command struct {
	Kind       Kind
	State      TargetState // valid only for KindStateChange
	Media      string      // optional; empty means "controller selects"
	ReceivedAt time.Time
}

// wire is the raw JSON schema published on the command topic. The sender
// historically used "animation" for the media field; both are accepted.
type wire struct {
	State     *string         `json:"state"`
	Media     string          `json:"media"`
	Animation string          `json:"animation"`
	Status    string          `json:"status"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Parse decodes one message. Messages without a state field parse as
// heartbeats; an unrecognized state value is malformed and an error.
func Parse(payload []byte, now time.Time) (Command, error) {
	var w wire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Command{}, fmt.Errorf("parse command payload: %w", err)
	}

	if w.State == nil {
		return Command{Kind: KindHeartbeat, ReceivedAt: now}, nil
	}

	var state TargetState
	switch TargetState(*w.State) {
	case StateActive:
		state = StateActive
	case StateAmbient:
		state = StateAmbient
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidState, *w.State)
	}

	media := w.Media
	if media == "" {
		media = w.Animation
	}

	return Command{
		Kind:       KindStateChange,
		State:      state,
		Media:      media,
		ReceivedAt: now,
	}, nil
}
