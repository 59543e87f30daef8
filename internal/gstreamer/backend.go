// Package gstreamer implements the pipeline interfaces on a GStreamer
// pipeline.
//
// The camera is a source bin ending in a valve that stays closed between
// captures:
//
//	<source> → videoconvert → videoscale → capsfilter → valve
//
// The encoder is a JPEG encoder feeding an appsink:
//
//	queue → jpegenc → appsink
//
// Connecting the still port links valve to queue and starts the pipeline.
// A capture opens the valve for exactly one sample; the appsink callback
// closes it again and copies the encoded frame into the buffers the caller
// sent to the encoder output port, calling the port callback from the
// GStreamer streaming thread.
package gstreamer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

const (
	defaultSource    = "videotestsrc"
	defaultMaxWidth  = 1920
	defaultMaxHeight = 1080
)

// Options configures the GStreamer backend.
type Options struct {
	// Source is the source element factory: videotestsrc, v4l2src or
	// libcamerasrc.
	Source string
	// Device is the v4l2 device path, used with v4l2src.
	Device string
	// SensorName, MaxWidth and MaxHeight describe the sensor; GStreamer
	// sources do not report them before negotiation.
	SensorName string
	MaxWidth   int
	MaxHeight  int
	Logger     *slog.Logger
}

// Backend builds components on a single GStreamer pipeline.
type Backend struct {
	opts Options
	log  *slog.Logger

	errors errorCounters

	mu       sync.Mutex
	pipeline *gst.Pipeline
	closed   bool
}

// New verifies GStreamer is usable and creates an empty pipeline.
func New(opts Options) (*Backend, error) {
	if opts.Source == "" {
		opts.Source = defaultSource
	}
	if opts.SensorName == "" {
		opts.SensorName = opts.Source
	}
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		opts.MaxWidth, opts.MaxHeight = defaultMaxWidth, defaultMaxHeight
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := CheckAvailable(opts.Source); err != nil {
		return nil, err
	}

	p, err := gst.NewPipeline("still-capture")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create pipeline: %w", err)
	}

	opts.Logger.Debug("gstreamer: backend ready", "source", opts.Source, "device", opts.Device)
	return &Backend{opts: opts, log: opts.Logger, pipeline: p}, nil
}

// CheckAvailable initialises GStreamer and verifies the source and encoder
// element factories exist.
func CheckAvailable(source string) error {
	gst.Init(nil)
	for _, factory := range []string{source, "jpegenc", "valve", "appsink"} {
		elem, err := gst.NewElement(factory)
		if err != nil {
			return fmt.Errorf("gstreamer: element %s not available: %w", factory, pipeline.StatusNotImplemented)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}

// Name implements pipeline.Backend.
func (b *Backend) Name() string { return "gstreamer" }

// SensorInfo implements pipeline.Backend. Only camera 0 exists.
func (b *Backend) SensorInfo(cameraNum int) (pipeline.SensorInfo, error) {
	if cameraNum != 0 {
		return pipeline.SensorInfo{}, fmt.Errorf("gstreamer: camera %d: %w", cameraNum, pipeline.StatusNotFound)
	}
	return pipeline.SensorInfo{
		Name:      b.opts.SensorName,
		MaxWidth:  b.opts.MaxWidth,
		MaxHeight: b.opts.MaxHeight,
	}, nil
}

// CreateComponent implements pipeline.Backend.
func (b *Backend) CreateComponent(kind pipeline.Kind) (pipeline.Component, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("gstreamer: backend closed: %w", pipeline.StatusNotReady)
	}

	switch kind {
	case pipeline.KindCamera:
		return newCamera(b)
	case pipeline.KindImageEncoder:
		return newEncoder(b)
	default:
		return nil, fmt.Errorf("gstreamer: unknown component kind %d: %w", kind, pipeline.StatusNotFound)
	}
}

// Connect implements pipeline.Backend. out must be the camera still port and
// in the encoder input.
func (b *Backend) Connect(out, in pipeline.Port) (pipeline.Connection, error) {
	op, ok1 := out.(*port)
	ip, ok2 := in.(*port)
	if !ok1 || !ok2 || !op.output || ip.output || op.tail == nil || ip.head == nil {
		return nil, fmt.Errorf("gstreamer: connect %s -> %s: %w", out.Name(), in.Name(), pipeline.StatusInvalid)
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

	return &connection{b: b, out: op, in: ip}, nil
}

// Close stops the pipeline. Components must already be destroyed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstreamer: failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// add puts elements into the pipeline and links them in order.
func (b *Backend) add(elems ...*gst.Element) error {
	if err := b.pipeline.AddMany(elems...); err != nil {
		return fmt.Errorf("gstreamer: add elements: %w", err)
	}
	if len(elems) > 1 {
		if err := gst.ElementLinkMany(elems...); err != nil {
			_ = b.pipeline.RemoveMany(elems...)
			return fmt.Errorf("gstreamer: link elements: %w", err)
		}
	}
	return nil
}

// remove stops elements and takes them out of the pipeline.
func (b *Backend) remove(elems ...*gst.Element) error {
	for _, e := range elems {
		if err := e.SetState(gst.StateNull); err != nil {
			b.log.Warn("gstreamer: element did not stop", "element", e.GetName(), "error", err)
		}
	}
	return b.pipeline.RemoveMany(elems...)
}

func newElement(factory string, props map[string]interface{}) (*gst.Element, error) {
	elem, err := gst.NewElement(factory)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create %s: %w", factory, pipeline.StatusNoMemory)
	}
	for name, value := range props {
		if err := elem.SetProperty(name, value); err != nil {
			return nil, fmt.Errorf("gstreamer: %s.%s: %v: %w", factory, name, err, pipeline.StatusInvalid)
		}
	}
	return elem, nil
}
