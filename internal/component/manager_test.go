package component

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline/sim"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultEncoder() EncoderConfig {
	return EncoderConfig{
		Encoding: pipeline.EncodingJPEG,
		Quality:  85,
		Thumbnail: pipeline.Thumbnail{
			Enable:  true,
			Width:   64,
			Height:  48,
			Quality: 35,
		},
	}
}

func TestManager_CreateStages(t *testing.T) {
	b := sim.New(sim.Options{Logger: quietLogger()})
	m := NewManager(b, quietLogger())

	cam, err := m.CreateCaptureStage(CameraConfig{Width: 1000, Height: 700})
	if err != nil {
		t.Fatalf("CreateCaptureStage() error = %v", err)
	}
	if cam.Width != 1000 || cam.Height != 700 {
		t.Errorf("still size = %dx%d, want 1000x700", cam.Width, cam.Height)
	}

	f := cam.Still.Format()
	if f.Width != 1024 || f.Height != 704 {
		t.Errorf("aligned format = %dx%d, want 1024x704", f.Width, f.Height)
	}
	if f.Crop.Width != 1000 || f.Crop.Height != 700 {
		t.Errorf("crop = %+v, want 1000x700", f.Crop)
	}
	if reqs := cam.Still.BufferRequirements(); reqs.Num < MinStillBuffers {
		t.Errorf("still buffers = %d, want at least %d", reqs.Num, MinStillBuffers)
	}

	enc, err := m.CreateEncodeStage(cam.Still, defaultEncoder())
	if err != nil {
		t.Fatalf("CreateEncodeStage() error = %v", err)
	}
	if enc.Pool == nil || enc.Pool.Count() != 3 || enc.Pool.BufferSize() != 4096 {
		t.Errorf("pool = %d x %d, want 3 x 4096", enc.Pool.Count(), enc.Pool.BufferSize())
	}
	if got := enc.Output.Format().Encoding; got != pipeline.EncodingJPEG {
		t.Errorf("output encoding = %q, want JPEG", got)
	}

	if live := b.Live(); live.Components != 2 || live.EnabledComponents != 2 {
		t.Errorf("live = %+v, want 2 enabled components", live)
	}

	enc.Destroy()
	cam.Destroy()
	if live := b.Live(); !live.Zero() {
		t.Errorf("handles after destroy = %+v, want zero", live)
	}
	t.Logf("✅ both stages built and torn down cleanly")
}

func TestManager_StillSizeDefaultsToSensor(t *testing.T) {
	b := sim.New(sim.Options{Logger: quietLogger()})
	m := NewManager(b, quietLogger())

	cam, err := m.CreateCaptureStage(CameraConfig{Width: 9000})
	if err != nil {
		t.Fatalf("CreateCaptureStage() error = %v", err)
	}
	defer cam.Destroy()

	if cam.Width != sim.DefaultSensor.MaxWidth || cam.Height != sim.DefaultSensor.MaxHeight {
		t.Errorf("still size = %dx%d, want sensor max %dx%d",
			cam.Width, cam.Height, sim.DefaultSensor.MaxWidth, sim.DefaultSensor.MaxHeight)
	}
}

func TestManager_CaptureStageFailures(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		status  pipeline.Status
		shutter uint32
		stage   string
		want    pipeline.Status
	}{
		{"create", "camera.create", pipeline.StatusNoMemory, 0, "create", pipeline.StatusNoMemory},
		{"camera_num", "camera:control.camera_num", pipeline.StatusNotFound, 0, "camera_num", pipeline.StatusNotFound},
		{"no_outputs", "camera.outputs", pipeline.StatusFault, 0, "outputs", pipeline.StatusNotImplemented},
		{"sensor_mode", "camera:control.sensor_mode", pipeline.StatusInvalid, 0, "sensor_mode", pipeline.StatusInvalid},
		{"control_enable", "camera:control.enable", pipeline.StatusIO, 0, "control_enable", pipeline.StatusIO},
		{"sensor_info", "sensor_info", pipeline.StatusNoDevice, 0, "sensor_info", pipeline.StatusNoDevice},
		{"stills_config", "camera:control.camera_config", pipeline.StatusInvalid, 0, "stills_config", pipeline.StatusInvalid},
		{"fps_range", "camera:out2.fps_range", pipeline.StatusInvalid, 7_000_000, "fps_range", pipeline.StatusInvalid},
		{"still_format", "camera:out2.commit", pipeline.StatusInvalid, 0, "still_format", pipeline.StatusInvalid},
		{"enable", "camera.enable", pipeline.StatusNoMemory, 0, "enable", pipeline.StatusNoMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sim.New(sim.Options{Logger: quietLogger()})
			b.FailAt(tt.step, tt.status)
			m := NewManager(b, quietLogger())

			stage, err := m.CreateCaptureStage(CameraConfig{ShutterSpeed: tt.shutter})
			if stage != nil {
				t.Errorf("stage = %+v, want nil", stage)
			}

			var ce *CreationError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *CreationError", err)
			}
			if ce.Component != "camera" || ce.Stage != tt.stage {
				t.Errorf("failed at %s/%s, want camera/%s", ce.Component, ce.Stage, tt.stage)
			}
			if ce.Status != tt.want {
				t.Errorf("status = %s, want %s", ce.Status, tt.want)
			}
			if live := b.Live(); !live.Zero() {
				t.Errorf("leaked handles = %+v", live)
			}
		})
	}
}

func TestManager_FPSRangeOnlyForLongExposure(t *testing.T) {
	b := sim.New(sim.Options{Logger: quietLogger()})
	b.FailAt("camera:out2.fps_range", pipeline.StatusInvalid)
	m := NewManager(b, quietLogger())

	// No hint is sent below one second, so the injected failure is never hit.
	cam, err := m.CreateCaptureStage(CameraConfig{ShutterSpeed: 500_000})
	if err != nil {
		t.Fatalf("CreateCaptureStage() error = %v", err)
	}
	cam.Destroy()
}

func TestManager_EncodeStageFailures(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		restart int
		stage   string // empty means creation succeeds
	}{
		{"create", "encoder.create", 0, "create"},
		{"input_format", "encoder:in0.commit", 0, "format"},
		{"output_format", "encoder:out0.commit", 0, "format"},
		{"quality", "encoder:out0.jpeg_quality", 0, "quality"},
		{"restart_interval_requested", "encoder:out0.restart_interval", 16, "restart_interval"},
		{"restart_interval_default", "encoder:out0.restart_interval", 0, ""},
		{"thumbnail", "encoder:control.thumbnail", 0, "thumbnail"},
		{"enable", "encoder.enable", 0, "enable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sim.New(sim.Options{Logger: quietLogger()})
			m := NewManager(b, quietLogger())

			cam, err := m.CreateCaptureStage(CameraConfig{Width: 320, Height: 240})
			if err != nil {
				t.Fatalf("CreateCaptureStage() error = %v", err)
			}
			defer cam.Destroy()

			b.FailAt(tt.step, pipeline.StatusInvalid)
			cfg := defaultEncoder()
			cfg.RestartInterval = tt.restart

			enc, err := m.CreateEncodeStage(cam.Still, cfg)
			if tt.stage == "" {
				if err != nil {
					t.Fatalf("CreateEncodeStage() error = %v, want success", err)
				}
				enc.Destroy()
				return
			}

			var ce *CreationError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *CreationError", err)
			}
			if ce.Component != "encoder" || ce.Stage != tt.stage {
				t.Errorf("failed at %s/%s, want encoder/%s", ce.Component, ce.Stage, tt.stage)
			}
			if enc != nil {
				t.Errorf("stage = %+v, want nil", enc)
			}
			if live := b.Live(); live.Components != 1 {
				t.Errorf("components = %d, want only the camera left", live.Components)
			}
		})
	}
}

func TestFPSRangeFor(t *testing.T) {
	tests := []struct {
		shutter uint32
		ok      bool
		low     pipeline.Rational
		high    pipeline.Rational
	}{
		{0, false, pipeline.Rational{}, pipeline.Rational{}},
		{1_000_000, false, pipeline.Rational{}, pipeline.Rational{}},
		{1_000_001, true, pipeline.Rational{Num: 167, Den: 1000}, pipeline.Rational{Num: 999, Den: 1000}},
		{6_000_000, true, pipeline.Rational{Num: 167, Den: 1000}, pipeline.Rational{Num: 999, Den: 1000}},
		{6_000_001, true, pipeline.Rational{Num: 5, Den: 1000}, pipeline.Rational{Num: 166, Den: 1000}},
	}

	for _, tt := range tests {
		got, ok := FPSRangeFor(tt.shutter)
		if ok != tt.ok || got.Low != tt.low || got.High != tt.high {
			t.Errorf("FPSRangeFor(%d) = %+v, %v; want %v-%v, %v", tt.shutter, got, ok, tt.low, tt.high, tt.ok)
		}
	}
}

func TestAlign(t *testing.T) {
	tests := []struct{ v, a, want int }{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{2592, 32, 2592},
		{1944, 16, 1952},
		{700, 16, 704},
	}
	for _, tt := range tests {
		if got := Align(tt.v, tt.a); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.v, tt.a, got, tt.want)
		}
	}
}

func TestGuard_ReleaseOrder(t *testing.T) {
	var order []string
	g := NewGuard(quietLogger())
	for _, name := range []string{"first", "second", "third"} {
		name := name
		g.Push(name, func() error {
			order = append(order, name)
			if name == "second" {
				return errors.New("boom")
			}
			return nil
		})
	}
	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}

	g.Release()
	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}

	g.Release()
	if len(order) != 3 {
		t.Errorf("second Release ran steps again: %v", order)
	}
}

func TestGuard_Dismiss(t *testing.T) {
	ran := false
	g := NewGuard(nil)
	g.Push("step", func() error { ran = true; return nil })
	g.Dismiss()
	g.Release()
	if ran {
		t.Error("dismissed step ran")
	}
}
