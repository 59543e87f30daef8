package sim

import (
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

type connection struct {
	b   *Backend
	out *port
	in  *port

	mu        sync.Mutex
	enabled   bool
	destroyed bool
}

// Enable enables both ends of the link.
func (c *connection) Enable() error {
	if err := c.b.fault("connection.enable"); err != nil {
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
	if err := c.out.Enable(nil); err != nil {
		return err
	}
	if err := c.in.Enable(nil); err != nil {
		_ = c.out.Disable()
		return err
	}
	c.enabled = true
	c.b.record("connection.enable", nil)
	return nil
}

func (c *connection) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *connection) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil
	}
	c.enabled = false
	if c.out.IsEnabled() {
		_ = c.out.Disable()
	}
	if c.in.IsEnabled() {
		_ = c.in.Disable()
	}
	c.b.record("connection.disable", nil)
	return nil
}

func (c *connection) Destroy() error {
	_ = c.Disable()

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	c.out.mu.Lock()
	c.out.peer = nil
	c.out.mu.Unlock()
	c.in.mu.Lock()
	c.in.peer = nil
	c.in.mu.Unlock()

	c.b.mu.Lock()
	delete(c.b.connections, c)
	c.b.mu.Unlock()
	c.b.record("connection.destroy", func(h *Handles) { h.Connections-- })
	return nil
}
