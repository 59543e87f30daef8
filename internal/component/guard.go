package component

import "log/slog"

type release struct {
	name string
	fn   func() error
}

// Guard collects release steps and runs them last-in first-out.
//
// Release never returns an error: a failed step is logged and the remaining
// steps still run.
type Guard struct {
	steps []release
	log   *slog.Logger
}

// NewGuard returns an empty guard logging to logger.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{log: logger}
}

// Push registers fn to run on Release under name.
func (g *Guard) Push(name string, fn func() error) {
	g.steps = append(g.steps, release{name: name, fn: fn})
}

// Len returns the number of pending steps.
func (g *Guard) Len() int { return len(g.steps) }

// Release runs every pending step in reverse registration order.
func (g *Guard) Release() {
	for i := len(g.steps) - 1; i >= 0; i-- {
		step := g.steps[i]
		if err := step.fn(); err != nil {
			g.log.Warn("component: teardown step failed", "step", step.name, "error", err)
		} else {
			g.log.Debug("component: teardown step done", "step", step.name)
		}
	}
	g.steps = nil
}

// Dismiss drops every pending step without running it, handing ownership of
// the resources to the caller.
func (g *Guard) Dismiss() {
	g.steps = nil
}
