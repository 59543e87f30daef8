package gstreamer

import (
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

type component struct {
	b        *Backend
	name     string
	elements []*gst.Element

	control *port
	inputs  []*port
	outputs []*port

	mu        sync.Mutex
	enabled   bool
	destroyed bool
}

func (c *component) Name() string           { return c.name }
func (c *component) Control() pipeline.Port { return c.control }

func (c *component) Inputs() []pipeline.Port {
	ports := make([]pipeline.Port, len(c.inputs))
	for i, p := range c.inputs {
		ports[i] = p
	}
	return ports
}

func (c *component) Outputs() []pipeline.Port {
	ports := make([]pipeline.Port, len(c.outputs))
	for i, p := range c.outputs {
		ports[i] = p
	}
	return ports
}

func (c *component) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return pipeline.StatusInvalid
	}
	c.enabled = true
	return nil
}

func (c *component) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	return nil
}

func (c *component) isEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Destroy disables whatever the caller left enabled and removes the
// component's elements from the pipeline.
func (c *component) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.enabled = false
	c.mu.Unlock()

	all := append([]*port{c.control}, c.inputs...)
	all = append(all, c.outputs...)
	for _, p := range all {
		if p.IsEnabled() {
			_ = p.Disable()
		}
	}

	if err := c.b.remove(c.elements...); err != nil {
		c.b.log.Warn("gstreamer: remove elements failed", "component", c.name, "error", err)
		return pipeline.StatusIO
	}
	c.b.log.Debug("gstreamer: component destroyed", "component", c.name)
	return nil
}
