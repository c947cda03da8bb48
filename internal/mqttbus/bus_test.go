// SPDX-License-Identifier: MIT

package mqttbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kschult4/Halloween-2025/internal/command"
	"github.com/kschult4/Halloween-2025/internal/config"
	"github.com/kschult4/Halloween-2025/internal/health"
	"github.com/kschult4/Halloween-2025/internal/resilience"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeMailbox struct {
	cmds []command.Command
}

func (f *fakeMailbox) Put(cmd command.Command) {
	f.cmds = append(f.cmds, cmd)
}

func newTestBus(threshold int) (*Bus, *fakeMailbox, *resilience.Layer) {
	layer := resilience.NewLayer(resilience.Settings{
		Threshold: threshold,
		Window:    time.Minute,
		Cooldown:  time.Minute,
	})
	box := &fakeMailbox{}
	bus := New(config.Default().MQTT, box, layer, health.NewManager(layer), time.Minute)
	return bus, box, layer
}

func TestOnMessageDeliversParsedCommand(t *testing.T) {
	bus, box, _ := newTestBus(5)

	bus.onMessage(nil, fakeMessage{
		topic:   "halloween/playback",
		payload: []byte(`{"state":"active","media":"zombie"}`),
	})

	require.Len(t, box.cmds, 1)
	assert.Equal(t, command.StateActive, box.cmds[0].State)
	assert.Equal(t, "zombie", box.cmds[0].Media)
}

func TestOnMessageMalformedPayloadCountsAgainstBreaker(t *testing.T) {
	bus, box, layer := newTestBus(5)

	bus.onMessage(nil, fakeMessage{
		topic:   "halloween/playback",
		payload: []byte(`{not json`),
	})

	assert.Empty(t, box.cmds)
	for _, st := range layer.Snapshot() {
		if st.Subsystem == resilience.SubsystemMessaging {
			assert.Equal(t, 1, st.Failures)
		}
	}
}

func TestOnMessageOpenBreakerDropsUnparsed(t *testing.T) {
	bus, box, layer := newTestBus(1)

	// First bad payload trips the single-failure breaker.
	bus.onMessage(nil, fakeMessage{payload: []byte(`garbage`)})
	// A valid command arriving while open never reaches the mailbox.
	bus.onMessage(nil, fakeMessage{payload: []byte(`{"state":"ambient"}`)})

	assert.Empty(t, box.cmds)
	for _, st := range layer.Snapshot() {
		if st.Subsystem == resilience.SubsystemMessaging {
			assert.Equal(t, resilience.StateOpen, st.State)
		}
	}
}
