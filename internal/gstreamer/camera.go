package gstreamer

import (
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

type camera struct {
	*component

	caps  *gst.Element
	valve *gst.Element

	mu         sync.Mutex
	sensorMode int
	stills     pipeline.CameraConfig
	fps        pipeline.FPSRange
	shutter    uint32
}

func newCamera(b *Backend) (pipeline.Component, error) {
	props := map[string]interface{}{}
	switch b.opts.Source {
	case "videotestsrc":
		props["is-live"] = true
	case "v4l2src":
		if b.opts.Device != "" {
			props["device"] = b.opts.Device
		}
	}

	src, err := newElement(b.opts.Source, props)
	if err != nil {
		return nil, err
	}
	convert, err := newElement("videoconvert", nil)
	if err != nil {
		return nil, err
	}
	scale, err := newElement("videoscale", nil)
	if err != nil {
		return nil, err
	}
	caps, err := newElement("capsfilter", nil)
	if err != nil {
		return nil, err
	}
	valve, err := newElement("valve", map[string]interface{}{"drop": true})
	if err != nil {
		return nil, err
	}

	elems := []*gst.Element{src, convert, scale, caps, valve}
	if err := b.add(elems...); err != nil {
		return nil, err
	}

	c := &camera{
		component: &component{b: b, name: "camera", elements: elems},
		caps:      caps,
		valve:     valve,
	}
	c.control = newPort(c.component, "camera:control", false)
	c.control.paramFn = c.setControl

	for i := 0; i < 3; i++ {
		out := newPort(c.component, fmt.Sprintf("camera:out%d", i), true)
		out.format = pipeline.Format{Encoding: pipeline.EncodingOpaque}
		out.reqs = pipeline.BufferRequirements{NumMin: 1, NumRecommended: 1, SizeMin: 1024, SizeRecommended: 1024}
		c.outputs = append(c.outputs, out)
	}
	still := c.outputs[pipeline.CameraCapturePort]
	still.tail = valve
	still.commitFn = c.commitStill
	still.paramFn = c.setStill

	b.log.Debug("gstreamer: camera created", "source", b.opts.Source)
	return c, nil
}

func (c *camera) setControl(param pipeline.Parameter) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch v := param.(type) {
	case pipeline.CameraNum:
		if v.Num != 0 {
			return pipeline.StatusNotFound
		}
	case pipeline.SensorMode:
		c.sensorMode = v.Mode
	case pipeline.CameraConfig:
		c.stills = v
	case pipeline.ShutterSpeed:
		c.shutter = v.Micros
		c.b.log.Debug("gstreamer: shutter speed recorded, source exposure left on auto", "shutter_us", v.Micros)
	default:
		return pipeline.StatusNotImplemented
	}
	return nil
}

func (c *camera) setStill(param pipeline.Parameter) error {
	switch v := param.(type) {
	case pipeline.FPSRange:
		c.mu.Lock()
		c.fps = v
		c.mu.Unlock()
		return nil
	case pipeline.Capture:
		if !v.Enable {
			return nil
		}
		return c.capture()
	default:
		return pipeline.StatusNotImplemented
	}
}

// commitStill locks the raw caps ahead of the valve to the crop size.
func (c *camera) commitStill(f pipeline.Format) error {
	if f.Encoding != pipeline.EncodingOpaque && f.Encoding != pipeline.EncodingI420 {
		return fmt.Errorf("gstreamer: still port encoding %q: %w", f.Encoding, pipeline.StatusInvalid)
	}
	w, h := f.Width, f.Height
	if f.Crop.Width > 0 && f.Crop.Height > 0 {
		w, h = f.Crop.Width, f.Crop.Height
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("gstreamer: still port has no frame size: %w", pipeline.StatusInvalid)
	}

	capsStr := fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d", w, h)
	if err := c.caps.SetProperty("caps", gst.NewCapsFromString(capsStr)); err != nil {
		return fmt.Errorf("gstreamer: set still caps: %v: %w", err, pipeline.StatusInvalid)
	}
	c.b.log.Debug("gstreamer: still caps locked", "caps", capsStr)
	return nil
}

// capture lets one frame through the valve to the connected encoder.
func (c *camera) capture() error {
	still := c.outputs[pipeline.CameraCapturePort]
	still.mu.Lock()
	enabled, peer := still.enabled, still.peer
	still.mu.Unlock()
	if !enabled || peer == nil || peer.encoder == nil {
		return pipeline.StatusNotConnected
	}
	if !c.isEnabled() {
		return pipeline.StatusNotReady
	}
	return peer.encoder.trigger(c.valve)
}
