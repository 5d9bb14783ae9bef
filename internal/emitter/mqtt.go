// Package emitter publishes completed holds to an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ayusman/asana/internal/game"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

// DefaultTopicPrefix is prepended to the target pose to build topics.
const DefaultTopicPrefix = "asana/holds"

// Config configures an MQTTEmitter.
type Config struct {
	Broker      string // host:port or a full URL
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// HoldEvent is the payload published for a completed hold.
type HoldEvent struct {
	ConnID     string    `msgpack:"conn_id"`
	Target     string    `msgpack:"target"`
	StartedAt  time.Time `msgpack:"started_at"`
	EndedAt    time.Time `msgpack:"ended_at"`
	DurationMS int64     `msgpack:"duration_ms"`
	FrameCount int       `msgpack:"frame_count"`
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// DefaultConnectTimeout bounds the initial broker connection.
const DefaultConnectTimeout = 5 * time.Second

// MQTTEmitter publishes hold events to topic <prefix>/<target>.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	log    logrus.FieldLogger

	newClient      func(*mqtt.ClientOptions) mqtt.Client
	connectTimeout time.Duration

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter; call Connect before publishing.
func NewMQTTEmitter(cfg Config, log logrus.FieldLogger) *MQTTEmitter {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	return &MQTTEmitter{
		cfg:            cfg,
		log:            log.WithField("component", "mqtt"),
		newClient:      mqtt.NewClient,
		connectTimeout: DefaultConnectTimeout,
		published:      make(map[string]uint64),
	}
}

// NewMQTTEmitterWithClient creates an emitter around an already connected client.
func NewMQTTEmitterWithClient(cfg Config, client mqtt.Client, log logrus.FieldLogger) *MQTTEmitter {
	e := NewMQTTEmitter(cfg, log)
	e.client = client
	e.connected = client.IsConnected()
	return e
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection with automatic reconnects.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.WithField("broker", e.cfg.Broker).Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.WithError(err).Warn("mqtt connection lost, will auto-reconnect")
	}

	e.client = e.newClient(opts)
	e.log.WithField("broker", e.cfg.Broker).Info("connecting to mqtt broker")

	// A failed connect stops the client so it does not keep retrying.
	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		e.client.Disconnect(0)
		return ctx.Err()
	case <-time.After(e.connectTimeout):
		e.client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		e.client.Disconnect(0)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Topic returns the topic used for holds of target.
func (e *MQTTEmitter) Topic(target string) string {
	return e.cfg.TopicPrefix + "/" + target
}

// PublishHold publishes a completed hold of one connection.
func (e *MQTTEmitter) PublishHold(ctx context.Context, connID string, hold game.Hold) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := msgpack.Marshal(&HoldEvent{
		ConnID:     connID,
		Target:     hold.Target,
		StartedAt:  hold.StartedAt,
		EndedAt:    hold.EndedAt,
		DurationMS: hold.Duration().Milliseconds(),
		FrameCount: len(hold.Frames),
	})
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to encode hold: %w", err)
	}

	topic := e.Topic(hold.Target)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		e.countError()
		return ctx.Err()
	case <-time.After(2 * time.Second):
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"topic": topic, "size": len(payload)}).Debug("hold published")
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
