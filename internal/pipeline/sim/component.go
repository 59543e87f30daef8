package sim

import (
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

type component struct {
	b    *Backend
	kind pipeline.Kind
	name string

	control *port
	inputs  []*port
	outputs []*port

	mu        sync.Mutex
	enabled   bool
	destroyed bool
	quality   int
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

func (c *component) isEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *component) Enable() error {
	if err := c.b.fault(c.name + ".enable"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return pipeline.StatusInvalid
	}
	if c.enabled {
		return nil
	}
	c.enabled = true
	c.b.record(c.name+".enable", func(h *Handles) { h.EnabledComponents++ })
	return nil
}

func (c *component) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	c.enabled = false
	c.b.record(c.name+".disable", func(h *Handles) { h.EnabledComponents-- })
	return nil
}

// Destroy disables whatever the caller left enabled, then frees the component.
func (c *component) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	all := append([]*port{c.control}, c.inputs...)
	all = append(all, c.outputs...)
	for _, p := range all {
		if p.IsEnabled() {
			_ = p.Disable()
		}
	}
	_ = c.Disable()

	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()

	c.b.mu.Lock()
	delete(c.b.components, c)
	c.b.mu.Unlock()
	c.b.record(c.name+".destroy", func(h *Handles) { h.Components-- })
	return nil
}
