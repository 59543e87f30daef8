package sim

import (
	"bytes"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// buildPipeline wires camera still port -> encoder the minimal way, without
// the component manager, so the backend can be tested on its own.
func buildPipeline(t *testing.T, b *Backend) (cam, enc pipeline.Component, conn pipeline.Connection) {
	t.Helper()

	cam, err := b.CreateComponent(pipeline.KindCamera)
	if err != nil {
		t.Fatalf("create camera: %v", err)
	}
	still := cam.Outputs()[pipeline.CameraCapturePort]
	still.SetFormat(pipeline.Format{Encoding: pipeline.EncodingOpaque, Width: 96, Height: 64})
	if err := still.CommitFormat(); err != nil {
		t.Fatalf("commit still: %v", err)
	}
	if err := cam.Enable(); err != nil {
		t.Fatalf("enable camera: %v", err)
	}

	enc, err = b.CreateComponent(pipeline.KindImageEncoder)
	if err != nil {
		t.Fatalf("create encoder: %v", err)
	}
	enc.Outputs()[0].SetFormat(pipeline.Format{Encoding: pipeline.EncodingJPEG})
	if err := enc.Enable(); err != nil {
		t.Fatalf("enable encoder: %v", err)
	}

	conn, err = b.Connect(still, enc.Inputs()[0])
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := conn.Enable(); err != nil {
		t.Fatalf("enable connection: %v", err)
	}
	return cam, enc, conn
}

func TestBackend_CaptureDeliversJPEG(t *testing.T) {
	b := New(Options{})
	cam, enc, conn := buildPipeline(t, b)

	pool, _ := pipeline.NewPool(3, 512)
	out := enc.Outputs()[0]

	var (
		mu   sync.Mutex
		data bytes.Buffer
		done = make(chan pipeline.BufferFlag, 1)
	)
	err := out.Enable(func(port pipeline.Port, buf *pipeline.Buffer) {
		mu.Lock()
		data.Write(buf.Payload())
		mu.Unlock()
		flags := buf.Flags
		buf.Release()
		if port.IsEnabled() {
			if fresh := pool.Get(); fresh != nil {
				if err := port.SendBuffer(fresh); err != nil {
					fresh.Release()
				}
			}
		}
		if flags&(pipeline.FlagFrameEnd|pipeline.FlagTransmissionFailed) != 0 {
			done <- flags
		}
	})
	if err != nil {
		t.Fatalf("enable output: %v", err)
	}
	if _, err := pool.DrainInto(out); err != nil {
		t.Fatalf("drain: %v", err)
	}

	still := cam.Outputs()[pipeline.CameraCapturePort]
	if err := still.SetParameter(pipeline.Capture{Enable: true}); err != nil {
		t.Fatalf("capture: %v", err)
	}

	select {
	case flags := <-done:
		if !flags.Has(pipeline.FlagFrameEnd) {
			t.Errorf("final flags = %v, want FrameEnd", flags)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frame never completed")
	}

	if err := out.Disable(); err != nil {
		t.Fatalf("disable output: %v", err)
	}
	if pool.InFlight() != 0 {
		t.Errorf("in_flight after disable = %d, want 0", pool.InFlight())
	}

	mu.Lock()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data.Bytes()))
	mu.Unlock()
	if err != nil {
		t.Fatalf("delivered bytes are not a JPEG: %v", err)
	}
	if cfg.Width != 96 || cfg.Height != 64 {
		t.Errorf("decoded %dx%d, want 96x64", cfg.Width, cfg.Height)
	}

	_ = conn.Destroy()
	_ = enc.Destroy()
	_ = cam.Destroy()
	if h := b.Live(); !h.Zero() {
		t.Errorf("leaked handles: %+v", h)
	}

	t.Logf("✅ %d JPEG bytes delivered across pool of 3×512", data.Len())
}

func TestBackend_CaptureWithoutOutputPort(t *testing.T) {
	b := New(Options{})
	cam, enc, conn := buildPipeline(t, b)
	defer func() {
		_ = conn.Destroy()
		_ = enc.Destroy()
		_ = cam.Destroy()
	}()

	err := cam.Outputs()[pipeline.CameraCapturePort].SetParameter(pipeline.Capture{Enable: true})
	if pipeline.StatusOf(err) != pipeline.StatusNotReady {
		t.Errorf("capture with disabled encoder output: got %v, want ENOTREADY", err)
	}
}

func TestBackend_FaultInjection(t *testing.T) {
	tests := []struct {
		step string
		run  func(b *Backend) error
	}{
		{"camera.create", func(b *Backend) error {
			_, err := b.CreateComponent(pipeline.KindCamera)
			return err
		}},
		{"camera:control.sensor_mode", func(b *Backend) error {
			c, _ := b.CreateComponent(pipeline.KindCamera)
			defer c.Destroy()
			return c.Control().SetParameter(pipeline.SensorMode{Mode: 1})
		}},
		{"encoder:out0.commit", func(b *Backend) error {
			c, _ := b.CreateComponent(pipeline.KindImageEncoder)
			defer c.Destroy()
			c.Outputs()[0].SetFormat(pipeline.Format{Encoding: pipeline.EncodingJPEG})
			return c.Outputs()[0].CommitFormat()
		}},
		{"sensor_info", func(b *Backend) error {
			_, err := b.SensorInfo(0)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			b := New(Options{})
			b.FailAt(tt.step, pipeline.StatusNoMemory)

			err := tt.run(b)
			if pipeline.StatusOf(err) != pipeline.StatusNoMemory {
				t.Errorf("got %v, want ENOMEM", err)
			}
			if h := b.Live(); !h.Zero() {
				t.Errorf("leaked handles: %+v", h)
			}
		})
	}
}

func TestBackend_CameraOutputsFault(t *testing.T) {
	b := New(Options{})
	b.FailAt("camera.outputs", pipeline.StatusNoDevice)

	cam, err := b.CreateComponent(pipeline.KindCamera)
	if err != nil {
		t.Fatalf("create camera: %v", err)
	}
	defer cam.Destroy()

	if n := len(cam.Outputs()); n != 0 {
		t.Errorf("outputs = %d, want 0", n)
	}
}

func TestBackend_SensorInfo(t *testing.T) {
	b := New(Options{})

	info, err := b.SensorInfo(0)
	if err != nil || info.Name != "ov5647" {
		t.Errorf("SensorInfo(0) = %+v, %v", info, err)
	}
	if _, err := b.SensorInfo(1); pipeline.StatusOf(err) != pipeline.StatusNotFound {
		t.Errorf("SensorInfo(1) err = %v, want ENOENT", err)
	}
}
