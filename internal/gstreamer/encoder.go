package gstreamer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

type encoder struct {
	*component

	jpeg *gst.Element
	sink *app.Sink
	in   *port
	out  *port

	// pending is set by a capture and cleared by the sample it lets through.
	pending atomic.Bool

	mu    sync.Mutex
	valve *gst.Element
}

func newEncoder(b *Backend) (pipeline.Component, error) {
	queue, err := newElement("queue", nil)
	if err != nil {
		return nil, err
	}
	jpeg, err := newElement("jpegenc", map[string]interface{}{"quality": 85})
	if err != nil {
		return nil, err
	}
	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create appsink: %w", pipeline.StatusNoMemory)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	elems := []*gst.Element{queue, jpeg, sink.Element}
	if err := b.add(elems...); err != nil {
		return nil, err
	}

	e := &encoder{
		component: &component{b: b, name: "encoder", elements: elems},
		jpeg:      jpeg,
		sink:      sink,
	}
	e.control = newPort(e.component, "encoder:control", false)
	e.control.paramFn = e.setControl

	e.in = newPort(e.component, "encoder:in0", false)
	e.in.head = queue
	e.in.encoder = e
	e.in.commitFn = func(f pipeline.Format) error {
		if f.Encoding != pipeline.EncodingOpaque && f.Encoding != pipeline.EncodingI420 {
			return fmt.Errorf("gstreamer: encoder input %q: %w", f.Encoding, pipeline.StatusInvalid)
		}
		return nil
	}

	e.out = newPort(e.component, "encoder:out0", true)
	e.out.encoder = e
	e.out.reqs = pipeline.BufferRequirements{NumMin: 1, NumRecommended: 3, SizeMin: 16 << 10, SizeRecommended: 80 << 10}
	e.out.commitFn = func(f pipeline.Format) error {
		if f.Encoding != pipeline.EncodingJPEG {
			return fmt.Errorf("gstreamer: encoding %q: %w", f.Encoding, pipeline.StatusNotImplemented)
		}
		return nil
	}
	e.out.paramFn = e.setOutput

	e.inputs = []*port{e.in}
	e.outputs = []*port{e.out}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: e.onSample,
	})

	b.log.Debug("gstreamer: encoder created")
	return e, nil
}

func (e *encoder) setControl(param pipeline.Parameter) error {
	switch v := param.(type) {
	case pipeline.Thumbnail:
		if v.Enable {
			e.b.log.Debug("gstreamer: jpegenc writes no thumbnail, request recorded",
				"width", v.Width, "height", v.Height, "quality", v.Quality)
		}
		return nil
	default:
		return pipeline.StatusNotImplemented
	}
}

func (e *encoder) setOutput(param pipeline.Parameter) error {
	switch v := param.(type) {
	case pipeline.JPEGQuality:
		if v.Quality < 0 || v.Quality > 100 {
			return pipeline.StatusInvalid
		}
		if err := e.jpeg.SetProperty("quality", v.Quality); err != nil {
			return fmt.Errorf("gstreamer: jpegenc quality: %v: %w", err, pipeline.StatusInvalid)
		}
		return nil
	case pipeline.ExifDisable:
		return nil
	default:
		// RestartInterval and ExifTag have no jpegenc equivalent.
		return pipeline.StatusNotImplemented
	}
}

// trigger arms the encoder for the next sample and opens the valve.
func (e *encoder) trigger(valve *gst.Element) error {
	if !e.isEnabled() || !e.out.IsEnabled() {
		return pipeline.StatusNotReady
	}
	if !e.pending.CompareAndSwap(false, true) {
		return fmt.Errorf("gstreamer: capture already in progress: %w", pipeline.StatusAgain)
	}

	e.mu.Lock()
	e.valve = valve
	e.mu.Unlock()

	if err := valve.SetProperty("drop", false); err != nil {
		e.pending.Store(false)
		return fmt.Errorf("gstreamer: open valve: %v: %w", err, pipeline.StatusIO)
	}
	return nil
}

func (e *encoder) closeValve() {
	e.mu.Lock()
	valve := e.valve
	e.valve = nil
	e.mu.Unlock()
	if valve != nil {
		if err := valve.SetProperty("drop", true); err != nil {
			e.b.log.Warn("gstreamer: failed to close valve", "error", err)
		}
	}
}

// fail ends a pending capture with a transmission failure.
func (e *encoder) fail(reason string) {
	if !e.pending.CompareAndSwap(true, false) {
		return
	}
	e.closeValve()
	e.b.log.Warn("gstreamer: capture failed", "reason", reason)
	e.out.emit(nil, true)
}

// onSample runs on the streaming thread for every encoded frame reaching
// the appsink. Only the frame a capture asked for is delivered.
func (e *encoder) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	if !e.pending.CompareAndSwap(true, false) {
		return gst.FlowOK
	}
	e.closeValve()

	buffer := sample.GetBuffer()
	if buffer == nil {
		e.b.log.Warn("gstreamer: sample without buffer")
		e.out.emit(nil, true)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	if len(frame) == 0 {
		e.b.log.Warn("gstreamer: empty encoded frame")
		e.out.emit(nil, true)
		return gst.FlowOK
	}

	e.b.log.Debug("gstreamer: frame encoded", "size_bytes", len(frame))
	e.out.emit(frame, false)
	return gst.FlowOK
}
