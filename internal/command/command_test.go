// SPDX-License-Identifier: MIT

package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActiveWithMedia(t *testing.T) {
	now := time.Date(2025, 10, 31, 19, 0, 0, 0, time.UTC)

	cmd, err := Parse([]byte(`{"state":"active","media":"skeleton_dance"}`), now)
	require.NoError(t, err)

	assert.Equal(t, KindStateChange, cmd.Kind)
	assert.Equal(t, StateActive, cmd.State)
	assert.Equal(t, "skeleton_dance", cmd.Media)
	assert.Equal(t, now, cmd.ReceivedAt)
}

func TestParseAnimationAlias(t *testing.T) {
	cmd, err := Parse([]byte(`{"state":"active","animation":"ghost_loop"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "ghost_loop", cmd.Media)
}

func TestParseMediaWinsOverAnimation(t *testing.T) {
	cmd, err := Parse([]byte(`{"state":"active","media":"a","animation":"b"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "a", cmd.Media)
}

func TestParseAmbientWithoutMedia(t *testing.T) {
	cmd, err := Parse([]byte(`{"state":"ambient"}`), time.Now())
	require.NoError(t, err)

	assert.Equal(t, KindStateChange, cmd.Kind)
	assert.Equal(t, StateAmbient, cmd.State)
	assert.Empty(t, cmd.Media)
}

func TestParseHeartbeat(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"status only", `{"status":"alive"}`},
		{"timestamp only", `{"timestamp":1730400000}`},
		{"string timestamp", `{"timestamp":"2025-10-31T19:00:00Z","status":"ok"}`},
		{"empty object", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse([]byte(tc.payload), time.Now())
			require.NoError(t, err)
			assert.Equal(t, KindHeartbeat, cmd.Kind)
		})
	}
}

func TestParseInvalidState(t *testing.T) {
	_, err := Parse([]byte(`{"state":"party"}`), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"state":`), time.Now())
	require.Error(t, err)
}

func TestParseNullStateIsHeartbeat(t *testing.T) {
	cmd, err := Parse([]byte(`{"state":null,"media":"x"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, cmd.Kind)
}
