// Package component creates, configures and destroys the capture and encode
// stages. Every creation step is named; a failure at any step destroys
// what was built so far before the error is returned.
package component

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

const (
	// MinStillBuffers is the smallest buffer count the still port streams with.
	MinStillBuffers = 3

	widthAlign  = 32
	heightAlign = 16

	longExposureMicros     = 6_000_000
	moderateExposureMicros = 1_000_000
)

// CameraConfig configures the capture stage.
type CameraConfig struct {
	CameraNum    int
	SensorMode   int
	Width        int // 0 uses the sensor maximum
	Height       int
	ShutterSpeed uint32 // microseconds, drives the frame-rate hint
}

// EncoderConfig configures the encode stage.
type EncoderConfig struct {
	Encoding        pipeline.Encoding
	Quality         int
	RestartInterval int
	Thumbnail       pipeline.Thumbnail
}

// CaptureStage is a configured and enabled camera.
type CaptureStage struct {
	Component pipeline.Component
	Still     pipeline.Port
	Sensor    pipeline.SensorInfo
	Width     int
	Height    int

	log *slog.Logger
}

// Destroy disables and destroys the camera. Errors are logged.
func (s *CaptureStage) Destroy() {
	if s == nil || s.Component == nil {
		return
	}
	if err := s.Component.Disable(); err != nil {
		s.log.Warn("component: camera disable failed", "error", err)
	}
	if err := s.Component.Destroy(); err != nil {
		s.log.Warn("component: camera destroy failed", "error", err)
	}
	s.Component = nil
}

// EncodeStage is a configured and enabled encoder with its output pool.
// The component and the pool exist together or not at all.
type EncodeStage struct {
	Component pipeline.Component
	Input     pipeline.Port
	Output    pipeline.Port
	Pool      *pipeline.Pool

	log *slog.Logger
}

// Destroy releases the pool, then disables and destroys the encoder.
func (s *EncodeStage) Destroy() {
	if s == nil || s.Component == nil {
		return
	}
	if s.Pool != nil {
		s.Pool.Destroy()
		s.Pool = nil
	}
	if err := s.Component.Disable(); err != nil {
		s.log.Warn("component: encoder disable failed", "error", err)
	}
	if err := s.Component.Destroy(); err != nil {
		s.log.Warn("component: encoder destroy failed", "error", err)
	}
	s.Component = nil
}

// Manager builds stages on a backend.
type Manager struct {
	backend pipeline.Backend
	log     *slog.Logger
}

// NewManager returns a manager for backend.
func NewManager(backend pipeline.Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: backend, log: logger}
}

// CreateCaptureStage creates the camera component.
//
// Steps, in order: create, camera_num, outputs, sensor_mode,
// control_enable, sensor_info, stills_config, fps_range, still_format,
// buffer_count, enable.
func (m *Manager) CreateCaptureStage(cfg CameraConfig) (stage *CaptureStage, err error) {
	const name = "camera"

	comp, err := m.backend.CreateComponent(pipeline.KindCamera)
	if err != nil {
		return nil, creationError(name, "create", err)
	}

	guard := NewGuard(m.log)
	guard.Push("camera.destroy", comp.Destroy)
	defer func() {
		if err != nil {
			guard.Release()
		}
	}()

	control := comp.Control()
	if err := control.SetParameter(pipeline.CameraNum{Num: cfg.CameraNum}); err != nil {
		return nil, creationError(name, "camera_num", err)
	}

	outputs := comp.Outputs()
	if len(outputs) == 0 {
		return nil, creationError(name, "outputs", fmt.Errorf("camera has no outputs: %w", pipeline.StatusNotImplemented))
	}
	if len(outputs) <= pipeline.CameraCapturePort {
		return nil, creationError(name, "outputs", fmt.Errorf("camera has no still port: %w", pipeline.StatusNotFound))
	}
	still := outputs[pipeline.CameraCapturePort]

	if err := control.SetParameter(pipeline.SensorMode{Mode: cfg.SensorMode}); err != nil {
		return nil, creationError(name, "sensor_mode", err)
	}

	if err := control.Enable(m.onControlEvent); err != nil {
		return nil, creationError(name, "control_enable", err)
	}

	sensor, err := m.backend.SensorInfo(cfg.CameraNum)
	if err != nil {
		return nil, creationError(name, "sensor_info", err)
	}
	width, height := stillSize(cfg, sensor)

	stills := pipeline.CameraConfig{
		MaxStillsWidth:   width,
		MaxStillsHeight:  height,
		OneShotStills:    true,
		NumPreviewFrames: 3,
		TimestampMode:    pipeline.TimestampResetSTC,
	}
	if err := control.SetParameter(stills); err != nil {
		return nil, creationError(name, "stills_config", err)
	}

	if fps, ok := FPSRangeFor(cfg.ShutterSpeed); ok {
		if err := still.SetParameter(fps); err != nil {
			return nil, creationError(name, "fps_range", err)
		}
	}

	format := still.Format()
	format.Encoding = pipeline.EncodingOpaque
	format.Width = Align(width, widthAlign)
	format.Height = Align(height, heightAlign)
	format.Crop = pipeline.Rect{X: 0, Y: 0, Width: width, Height: height}
	format.FrameRate = pipeline.Rational{Num: 0, Den: 1}
	still.SetFormat(format)
	if err := still.CommitFormat(); err != nil {
		return nil, creationError(name, "still_format", err)
	}

	reqs := still.BufferRequirements()
	num := max(reqs.Num, reqs.NumRecommended, MinStillBuffers)
	size := max(reqs.Size, reqs.SizeRecommended)
	still.SetBuffers(num, size)

	if err := comp.Enable(); err != nil {
		return nil, creationError(name, "enable", err)
	}

	guard.Dismiss()
	m.log.Info("component: capture stage ready",
		"sensor", sensor.Name,
		"camera_num", cfg.CameraNum,
		"resolution", fmt.Sprintf("%dx%d", width, height),
		"buffers", num,
	)
	return &CaptureStage{
		Component: comp,
		Still:     still,
		Sensor:    sensor,
		Width:     width,
		Height:    height,
		log:       m.log,
	}, nil
}

// CreateEncodeStage creates the encoder fed from upstream and its output pool.
//
// Steps, in order: create, ports, format, quality, restart_interval,
// thumbnail, enable, pool.
func (m *Manager) CreateEncodeStage(upstream pipeline.Port, cfg EncoderConfig) (stage *EncodeStage, err error) {
	const name = "encoder"

	comp, err := m.backend.CreateComponent(pipeline.KindImageEncoder)
	if err != nil {
		return nil, creationError(name, "create", err)
	}

	guard := NewGuard(m.log)
	guard.Push("encoder.destroy", comp.Destroy)
	defer func() {
		if err != nil {
			guard.Release()
		}
	}()

	inputs, outputs := comp.Inputs(), comp.Outputs()
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, creationError(name, "ports", fmt.Errorf("encoder needs one input and one output: %w", pipeline.StatusNotImplemented))
	}
	in, out := inputs[0], outputs[0]

	in.SetFormat(upstream.Format())
	outFormat := upstream.Format()
	outFormat.Encoding = cfg.Encoding
	out.SetFormat(outFormat)

	reqs := out.BufferRequirements()
	num := max(reqs.NumRecommended, reqs.NumMin)
	size := max(reqs.SizeRecommended, reqs.SizeMin)
	out.SetBuffers(num, size)

	if err := in.CommitFormat(); err != nil {
		return nil, creationError(name, "format", err)
	}
	if err := out.CommitFormat(); err != nil {
		return nil, creationError(name, "format", err)
	}

	if err := out.SetParameter(pipeline.JPEGQuality{Quality: cfg.Quality}); err != nil {
		return nil, creationError(name, "quality", err)
	}

	if err := out.SetParameter(pipeline.RestartInterval{Interval: cfg.RestartInterval}); err != nil {
		if cfg.RestartInterval != 0 {
			return nil, creationError(name, "restart_interval", err)
		}
		m.log.Debug("component: restart interval not supported, ignored", "error", err)
	}

	thumb := cfg.Thumbnail
	if !thumb.Enable {
		thumb = pipeline.Thumbnail{}
	}
	if err := comp.Control().SetParameter(thumb); err != nil {
		return nil, creationError(name, "thumbnail", err)
	}

	if err := comp.Enable(); err != nil {
		return nil, creationError(name, "enable", err)
	}

	pool, perr := pipeline.NewPool(num, size)
	if perr != nil {
		return nil, creationError(name, "pool", fmt.Errorf("%v: %w", perr, pipeline.StatusNoMemory))
	}
	guard.Dismiss()
	m.log.Info("component: encode stage ready",
		"encoding", string(cfg.Encoding),
		"quality", cfg.Quality,
		"buffers", num,
		"buffer_size", size,
		"thumbnail", thumb.Enable,
	)
	return &EncodeStage{
		Component: comp,
		Input:     in,
		Output:    out,
		Pool:      pool,
		log:       m.log,
	}, nil
}

// onControlEvent logs camera control port events.
func (m *Manager) onControlEvent(port pipeline.Port, buf *pipeline.Buffer) {
	m.log.Debug("component: camera control event", "port", port.Name(), "length", buf.Length, "flags", buf.Flags)
	buf.Release()
}

// FPSRangeFor returns the frame-rate hint for long exposures.
func FPSRangeFor(shutterMicros uint32) (pipeline.FPSRange, bool) {
	switch {
	case shutterMicros > longExposureMicros:
		return pipeline.FPSRange{
			Low:  pipeline.Rational{Num: 5, Den: 1000},
			High: pipeline.Rational{Num: 166, Den: 1000},
		}, true
	case shutterMicros > moderateExposureMicros:
		return pipeline.FPSRange{
			Low:  pipeline.Rational{Num: 167, Den: 1000},
			High: pipeline.Rational{Num: 999, Den: 1000},
		}, true
	default:
		return pipeline.FPSRange{}, false
	}
}

// Align rounds v up to a multiple of a (a power of two).
func Align(v, a int) int {
	return (v + a - 1) &^ (a - 1)
}

func stillSize(cfg CameraConfig, sensor pipeline.SensorInfo) (int, int) {
	w, h := cfg.Width, cfg.Height
	if w <= 0 || (sensor.MaxWidth > 0 && w > sensor.MaxWidth) {
		w = sensor.MaxWidth
	}
	if h <= 0 || (sensor.MaxHeight > 0 && h > sensor.MaxHeight) {
		h = sensor.MaxHeight
	}
	return w, h
}
