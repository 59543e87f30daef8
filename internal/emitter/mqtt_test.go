package emitter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	token *fakeToken
	sent  []message
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) Disconnect(uint)   {}

func newTestEmitter(token *fakeToken) (*MQTTEmitter, *fakeClient) {
	e := NewMQTTEmitter(Config{TopicPrefix: "orion", Camera: "ov5647", QoS: 1},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := &fakeClient{token: token}
	e.client = client
	e.setConnected(true)
	return e, client
}

func TestTopic(t *testing.T) {
	if got := Topic("orion", "ov5647"); got != "orion/ov5647/frames" {
		t.Errorf("Topic() = %q", got)
	}
	if got := Topic("orion", ""); got != "orion/default/frames" {
		t.Errorf("Topic() without camera = %q", got)
	}
}

func TestPublish(t *testing.T) {
	e, client := newTestEmitter(&fakeToken{})

	ev := FrameEvent{
		Camera:     "ov5647",
		FrameID:    7,
		Path:       "/data/image0007.jpg",
		State:      "complete",
		Bytes:      12345,
		Buffers:    4,
		TraceID:    "trace-1",
		CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := e.Publish(ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(client.sent))
	}
	msg := client.sent[0]
	if msg.topic != "orion/ov5647/frames" || msg.qos != 1 {
		t.Errorf("published to %s qos %d", msg.topic, msg.qos)
	}

	var got FrameEvent
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.FrameID != 7 || got.State != "complete" || got.TraceID != "trace-1" {
		t.Errorf("payload = %+v", got)
	}
	if s := e.Stats(); s.Published != 1 || s.Errors != 0 {
		t.Errorf("stats = %+v", s)
	}
	t.Logf("✅ frame event published: %s", msg.payload)
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name      string
		token     *fakeToken
		connected bool
	}{
		{"not_connected", &fakeToken{}, false},
		{"timeout", &fakeToken{timeout: true}, true},
		{"broker_error", &fakeToken{err: errors.New("not authorized")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEmitter(tt.token)
			e.setConnected(tt.connected)

			if err := e.Publish(FrameEvent{FrameID: 1}); err == nil {
				t.Fatal("Publish() succeeded, want error")
			}
			if s := e.Stats(); s.Errors != 1 || s.Published != 0 {
				t.Errorf("stats = %+v", s)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	e, _ := newTestEmitter(&fakeToken{})
	e.Disconnect()
	if e.Stats().Connected {
		t.Error("still connected after Disconnect")
	}
}
