// SPDX-License-Identifier: MIT

// Package mqttbus connects the daemon to its MQTT broker: inbound
// playback commands on the command topic, outbound health snapshots on
// the status topic. It only ever writes inbound commands into the render
// loop's mailbox; it never touches playback state directly.
package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kschult4/Halloween-2025/internal/command"
	"github.com/kschult4/Halloween-2025/internal/config"
	"github.com/kschult4/Halloween-2025/internal/health"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/metrics"
	"github.com/kschult4/Halloween-2025/internal/resilience"
)

// Mailbox receives parsed inbound commands.
type Mailbox interface {
	Put(cmd command.Command)
}

// Bus owns the MQTT client for both directions.
type Bus struct {
	cfg     config.MQTTConfig
	mailbox Mailbox
	layer   *resilience.Layer
	hm      *health.Manager
	status  time.Duration
	logger  zerolog.Logger

	client mqtt.Client

	mu        sync.RWMutex
	connected bool
}

// New creates a Bus. Call Connect before Run.
func New(cfg config.MQTTConfig, mailbox Mailbox, layer *resilience.Layer, hm *health.Manager, statusInterval time.Duration) *Bus {
	return &Bus{
		cfg:     cfg,
		mailbox: mailbox,
		layer:   layer,
		hm:      hm,
		status:  statusInterval,
		logger:  xglog.WithComponent("mqtt"),
	}
}

// Connect dials the broker. The client auto-reconnects on its own after
// the first successful connection, and the subscription is re-established
// from the on-connect handler so reconnects pick it back up.
func (b *Bus) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		b.setConnected(true)
		b.logger.Info().
			Str("event", "mqtt.connected").
			Str("broker", b.cfg.Broker).
			Str("topic", b.cfg.Topic).
			Msg("broker connection established")

		token := c.Subscribe(b.cfg.Topic, 0, b.onMessage)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			b.logger.Error().
				Err(token.Error()).
				Str("event", "mqtt.subscribe_failed").
				Str("topic", b.cfg.Topic).
				Msg("could not subscribe")
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		b.setConnected(false)
		b.logger.Warn().
			Err(err).
			Str("event", "mqtt.disconnected").
			Str("broker", b.cfg.Broker).
			Msg("connection lost, auto-reconnect pending")
	}

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		// Connect retry is enabled, so the client keeps dialing in the
		// background; playback runs standalone until the broker shows up.
		b.logger.Warn().
			Str("event", "mqtt.connect_pending").
			Str("broker", b.cfg.Broker).
			Msg("broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", b.cfg.Broker, err)
	}
	return nil
}

// onMessage parses one inbound payload under the messaging breaker and
// drops the result into the mailbox. Malformed payloads count as breaker
// failures; with the breaker open the system simply coasts on the
// ambient timeout until messages parse again.
func (b *Bus) onMessage(_ mqtt.Client, msg mqtt.Message) {
	err := b.layer.Do(resilience.SubsystemMessaging, func() error {
		cmd, err := command.Parse(msg.Payload(), time.Now())
		if err != nil {
			return err
		}
		b.mailbox.Put(cmd)
		return nil
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			metrics.RecordCommand("malformed")
		}
		b.logger.Warn().
			Err(err).
			Str("event", "mqtt.bad_payload").
			Str("topic", msg.Topic()).
			Int("bytes", len(msg.Payload())).
			Msg("inbound message rejected")
	}
}

// Run publishes health snapshots to <topic>/status until ctx is
// canceled, then disconnects.
func (b *Bus) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.status)
	defer ticker.Stop()
	statusTopic := b.cfg.Topic + "/status"

	for {
		select {
		case <-ctx.Done():
			b.client.Disconnect(250)
			return ctx.Err()
		case <-ticker.C:
			b.publishStatus(ctx, statusTopic)
		}
	}
}

func (b *Bus) publishStatus(ctx context.Context, topic string) {
	if !b.Connected() {
		return
	}
	snap := b.hm.Snapshot(ctx)
	payload, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("event", "mqtt.status_marshal").
			Msg("could not encode health snapshot")
		return
	}
	token := b.client.Publish(topic, 0, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		b.logger.Warn().
			Err(token.Error()).
			Str("event", "mqtt.status_publish").
			Str("topic", topic).
			Msg("status publish failed")
	}
}

// Connected reports broker connectivity for health checks.
func (b *Bus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bus) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}
