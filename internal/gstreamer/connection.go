package gstreamer

import (
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

type connection struct {
	b   *Backend
	out *port
	in  *port

	mu        sync.Mutex
	linked    bool
	enabled   bool
	destroyed bool
	stop      chan struct{}
	done      chan struct{}
}

// Enable links the still port to the encoder input, starts the pipeline and
// the bus monitor.
func (c *connection) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return pipeline.StatusInvalid
	}
	if c.enabled {
		return nil
	}

	if !c.linked {
		src := c.out.tail.GetStaticPad("src")
		sink := c.in.head.GetStaticPad("sink")
		if src == nil || sink == nil {
			return fmt.Errorf("gstreamer: missing pad linking %s -> %s: %w", c.out.name, c.in.name, pipeline.StatusInvalid)
		}
		if ret := src.Link(sink); ret != gst.PadLinkOK {
			c.b.log.Error("gstreamer: failed to link pads",
				"out", c.out.name,
				"in", c.in.name,
				"ret", ret,
			)
			return fmt.Errorf("gstreamer: link %s -> %s: %w", c.out.name, c.in.name, pipeline.StatusInvalid)
		}
		c.linked = true
	}

	if err := c.out.Enable(nil); err != nil {
		return err
	}
	if err := c.in.Enable(nil); err != nil {
		_ = c.out.Disable()
		return err
	}

	if err := c.b.pipeline.SetState(gst.StatePlaying); err != nil {
		_ = c.in.Disable()
		_ = c.out.Disable()
		return fmt.Errorf("gstreamer: failed to start pipeline: %v: %w", err, pipeline.StatusIO)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.b.monitorBus(c.in.encoder, c.stop, c.done)

	c.enabled = true
	c.b.log.Debug("gstreamer: connection enabled, pipeline playing", "out", c.out.name, "in", c.in.name)
	return nil
}

func (c *connection) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Disable stops the bus monitor and the pipeline.
func (c *connection) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	c.enabled = false

	close(c.stop)
	<-c.done
	c.stop, c.done = nil, nil

	if err := c.b.pipeline.SetState(gst.StateNull); err != nil {
		c.b.log.Warn("gstreamer: failed to stop pipeline", "error", err)
	}
	if c.out.IsEnabled() {
		_ = c.out.Disable()
	}
	if c.in.IsEnabled() {
		_ = c.in.Disable()
	}
	return nil
}

// Destroy disables and unlinks the connection.
func (c *connection) Destroy() error {
	_ = c.Disable()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true

	if c.linked {
		src := c.out.tail.GetStaticPad("src")
		sink := c.in.head.GetStaticPad("sink")
		if src != nil && sink != nil && !src.Unlink(sink) {
			c.b.log.Warn("gstreamer: failed to unlink pads", "out", c.out.name, "in", c.in.name)
		}
		c.linked = false
	}

	c.out.mu.Lock()
	c.out.peer = nil
	c.out.mu.Unlock()
	c.in.mu.Lock()
	c.in.peer = nil
	c.in.mu.Unlock()
	return nil
}
