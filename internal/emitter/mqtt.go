// Package emitter publishes a small JSON event for every finished frame.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config configures the broker connection.
type Config struct {
	Broker      string // tcp://host:1883
	ClientID    string
	TopicPrefix string
	Camera      string
	QoS         byte
}

// FrameEvent is the payload published for one frame.
type FrameEvent struct {
	Camera     string    `json:"camera"`
	FrameID    int64     `json:"frame_id"`
	Path       string    `json:"path,omitempty"`
	State      string    `json:"state"`
	Bytes      int64     `json:"bytes"`
	Buffers    int       `json:"buffers"`
	TraceID    string    `json:"trace_id"`
	Error      string    `json:"error,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	DurationMS int64     `json:"duration_ms"`
}

// publisher is the part of mqtt.Client the emitter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTEmitter publishes frame events to <prefix>/<camera>/frames.
type MQTTEmitter struct {
	cfg    Config
	topic  string
	client publisher
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// NewMQTTEmitter creates an emitter; Connect must be called before Publish.
func NewMQTTEmitter(cfg Config, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		cfg:   cfg,
		topic: Topic(cfg.TopicPrefix, cfg.Camera),
		log:   logger,
	}
}

// Topic returns the frame event topic for camera.
func Topic(prefix, camera string) string {
	if camera == "" {
		camera = "default"
	}
	return fmt.Sprintf("%s/%s/frames", prefix, camera)
}

// Connect establishes the broker connection with automatic reconnection.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.Info("emitter: mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("emitter: mqtt connection lost, will auto-reconnect", "broker", e.cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	e.client = client

	e.log.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker, "topic", e.topic)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish sends ev. Failures are counted and returned; the capture loop
// only logs them.
func (e *MQTTEmitter) Publish(ev FrameEvent) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: marshal frame event: %w", err)
	}

	token := e.client.Publish(e.topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.log.Debug("emitter: frame event published",
		"topic", e.topic,
		"frame_id", ev.FrameID,
		"state", ev.State,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
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
