// Package sim is an in-process co-processor for the pipeline interfaces.
//
// It encodes a synthetic test pattern with image/jpeg, chunks it across
// the buffers sent to the encoder output port and delivers them from its own
// goroutine, the same way hardware delivers from its callback thread. Every
// operation can be made to fail by step name, and live handles are counted so
// tests can check that teardown released everything.
package sim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// DefaultSensor matches the OV5647 module the simulator pretends to be.
var DefaultSensor = pipeline.SensorInfo{Name: "ov5647", MaxWidth: 2592, MaxHeight: 1944}

// Options configures a simulated backend.
type Options struct {
	Sensor  pipeline.SensorInfo
	Cameras int
	Logger  *slog.Logger
}

// Handles counts live resources; all zero after a clean teardown.
type Handles struct {
	Components        int
	EnabledComponents int
	EnabledPorts      int
	Connections       int
}

// Zero reports whether nothing is left allocated or enabled.
func (h Handles) Zero() bool {
	return h == Handles{}
}

// Backend is a simulated co-processor.
type Backend struct {
	sensor  pipeline.SensorInfo
	cameras int
	log     *slog.Logger

	mu          sync.Mutex
	faults      map[string]pipeline.Status
	components  map[*component]struct{}
	connections map[*connection]struct{}
	handles     Handles
	events      []string

	pendingTags  []string
	frameTags    []string
	exifDisabled bool
	captures     int
	failNext     int
}

// New creates a simulated backend.
func New(opts Options) *Backend {
	if opts.Sensor.Name == "" {
		opts.Sensor = DefaultSensor
	}
	if opts.Cameras <= 0 {
		opts.Cameras = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Backend{
		sensor:      opts.Sensor,
		cameras:     opts.Cameras,
		log:         opts.Logger,
		faults:      make(map[string]pipeline.Status),
		components:  make(map[*component]struct{}),
		connections: make(map[*connection]struct{}),
	}
}

// Name implements pipeline.Backend.
func (b *Backend) Name() string { return "sim" }

// FailAt makes the operation named step return status until cleared.
//
// Steps are "<component>.create", "<component>.enable", "camera.outputs",
// "<port>.commit", "<port>.enable", "<port>.<param>" (for example
// "camera:control.sensor_mode" or "encoder:out0.jpeg_quality"),
// "connection.create", "connection.enable" and "sensor_info".
func (b *Backend) FailAt(step string, status pipeline.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[step] = status
}

// ClearFaults removes every injected failure.
func (b *Backend) ClearFaults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = make(map[string]pipeline.Status)
}

// FailNextFrames makes the next n captures end with a transmission failure.
func (b *Backend) FailNextFrames(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
}

// Live returns the current handle counts.
func (b *Backend) Live() Handles {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles
}

// Events returns the ordered log of lifecycle operations.
func (b *Backend) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// LastFrameTags returns the EXIF tags applied before the most recent capture.
func (b *Backend) LastFrameTags() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.frameTags...)
}

// ExifDisabled reports the last ExifDisable value set on the encoder.
func (b *Backend) ExifDisabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exifDisabled
}

// Captures returns how many captures were triggered.
func (b *Backend) Captures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captures
}

// SensorInfo implements pipeline.Backend.
func (b *Backend) SensorInfo(cameraNum int) (pipeline.SensorInfo, error) {
	if err := b.fault("sensor_info"); err != nil {
		return pipeline.SensorInfo{}, err
	}
	if cameraNum < 0 || cameraNum >= b.cameras {
		return pipeline.SensorInfo{}, pipeline.StatusNotFound
	}
	return b.sensor, nil
}

// CreateComponent implements pipeline.Backend.
func (b *Backend) CreateComponent(kind pipeline.Kind) (pipeline.Component, error) {
	var name string
	switch kind {
	case pipeline.KindCamera:
		name = "camera"
	case pipeline.KindImageEncoder:
		name = "encoder"
	default:
		return nil, fmt.Errorf("sim: unknown component kind %d: %w", kind, pipeline.StatusNotFound)
	}
	if err := b.fault(name + ".create"); err != nil {
		return nil, err
	}

	c := &component{b: b, kind: kind, name: name}
	c.control = newPort(c, name+":control", false)

	switch kind {
	case pipeline.KindCamera:
		if b.fault("camera.outputs") == nil {
			for i := 0; i < 3; i++ {
				out := newPort(c, fmt.Sprintf("camera:out%d", i), true)
				out.format = pipeline.Format{Encoding: pipeline.EncodingOpaque}
				out.reqs = pipeline.BufferRequirements{NumMin: 1, NumRecommended: 1, SizeMin: 1024, SizeRecommended: 1024}
				c.outputs = append(c.outputs, out)
			}
		}
	case pipeline.KindImageEncoder:
		c.inputs = []*port{newPort(c, "encoder:in0", false)}
		out := newPort(c, "encoder:out0", true)
		out.reqs = pipeline.BufferRequirements{NumMin: 1, NumRecommended: 3, SizeMin: 2048, SizeRecommended: 4096}
		c.outputs = []*port{out}
		c.quality = 85
	}

	b.mu.Lock()
	b.components[c] = struct{}{}
	b.handles.Components++
	b.events = append(b.events, name+".create")
	b.mu.Unlock()

	b.log.Debug("sim: component created", "component", name)
	return c, nil
}

// Connect implements pipeline.Backend.
func (b *Backend) Connect(out, in pipeline.Port) (pipeline.Connection, error) {
	if err := b.fault("connection.create"); err != nil {
		return nil, err
	}
	op, ok1 := out.(*port)
	ip, ok2 := in.(*port)
	if !ok1 || !ok2 || !op.output || ip.output {
		return nil, fmt.Errorf("sim: connect %s -> %s: %w", out.Name(), in.Name(), pipeline.StatusInvalid)
	}

	op.mu.Lock()
	ip.mu.Lock()
	busy := op.peer != nil || ip.peer != nil
	if !busy {
		op.peer, ip.peer = ip, op
	}
	ip.mu.Unlock()
	op.mu.Unlock()
	if busy {
		return nil, pipeline.StatusConnected
	}

	conn := &connection{b: b, out: op, in: ip}
	b.mu.Lock()
	b.connections[conn] = struct{}{}
	b.handles.Connections++
	b.events = append(b.events, "connection.create")
	b.mu.Unlock()
	return conn, nil
}

func (b *Backend) fault(step string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.faults[step]; ok && s != pipeline.StatusSuccess {
		b.events = append(b.events, step+"!"+s.String())
		return s
	}
	return nil
}

func (b *Backend) record(event string, delta func(h *Handles)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if delta != nil {
		delta(&b.handles)
	}
}

// takeFrameFault consumes one pending transmission failure.
func (b *Backend) takeFrameFault() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.captures++
	b.frameTags, b.pendingTags = b.pendingTags, nil
	if b.failNext > 0 {
		b.failNext--
		return true
	}
	return false
}
