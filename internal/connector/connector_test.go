package connector

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline/sim"
)

func newPorts(t *testing.T, b *sim.Backend) (cam, enc pipeline.Component) {
	t.Helper()
	cam, err := b.CreateComponent(pipeline.KindCamera)
	if err != nil {
		t.Fatalf("create camera: %v", err)
	}
	enc, err = b.CreateComponent(pipeline.KindImageEncoder)
	if err != nil {
		t.Fatalf("create encoder: %v", err)
	}
	t.Cleanup(func() {
		_ = enc.Destroy()
		_ = cam.Destroy()
	})
	return cam, enc
}

func TestConnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		step   string
		op     string
		status pipeline.Status
	}{
		{"success", "", "", pipeline.StatusSuccess},
		{"create_fails", "connection.create", "create", pipeline.StatusNoMemory},
		{"enable_fails", "connection.enable", "enable", pipeline.StatusIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sim.New(sim.Options{Logger: logger})
			cam, enc := newPorts(t, b)
			if tt.step != "" {
				b.FailAt(tt.step, tt.status)
			}

			conn, err := Connect(b, cam.Outputs()[pipeline.CameraCapturePort], enc.Inputs()[0], logger)
			if tt.op == "" {
				if err != nil {
					t.Fatalf("Connect() error = %v", err)
				}
				if !conn.IsEnabled() {
					t.Error("connection not enabled")
				}
				if err := conn.Destroy(); err != nil {
					t.Errorf("Destroy() error = %v", err)
				}
				if b.Live().Connections != 0 {
					t.Errorf("connections = %d after destroy", b.Live().Connections)
				}
				return
			}

			var ce *ConnectionError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConnectionError", err)
			}
			if ce.Op != tt.op || ce.Status != tt.status {
				t.Errorf("got %s/%s, want %s/%s", ce.Op, ce.Status, tt.op, tt.status)
			}
			if conn != nil {
				t.Error("connection returned alongside error")
			}
			if live := b.Live(); live.Connections != 0 || live.EnabledPorts != 0 {
				t.Errorf("leaked after failure: %+v", live)
			}
		})
	}
}

func TestConnect_PortAlreadyConnected(t *testing.T) {
	b := sim.New(sim.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	cam, enc := newPorts(t, b)
	still, in := cam.Outputs()[pipeline.CameraCapturePort], enc.Inputs()[0]

	first, err := Connect(b, still, in, nil)
	if err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	defer first.Destroy()

	_, err = Connect(b, still, in, nil)
	if pipeline.StatusOf(err) != pipeline.StatusConnected {
		t.Errorf("second Connect() status = %s, want %s", pipeline.StatusOf(err), pipeline.StatusConnected)
	}
}

func TestConnect_NilPort(t *testing.T) {
	_, err := Connect(sim.New(sim.Options{}), nil, nil, nil)
	if pipeline.StatusOf(err) != pipeline.StatusInvalid {
		t.Errorf("status = %s, want %s", pipeline.StatusOf(err), pipeline.StatusInvalid)
	}
}
