package delivery

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by WaitTimeout when no frame finished in time.
var ErrTimeout = errors.New("delivery: timed out waiting for frame completion")

// Outcome is what the delivery side reports when a frame ends.
type Outcome struct {
	State   State
	Bytes   int64
	Buffers int
	TraceID string
	Err     error
}

// Completion is a single-slot completion channel between the delivery
// context and one waiter.
type Completion struct {
	ch chan Outcome
}

// NewCompletion returns an empty completion.
func NewCompletion() *Completion {
	return &Completion{ch: make(chan Outcome, 1)}
}

// Signal publishes o without blocking. It returns false if an outcome is
// already pending.
func (c *Completion) Signal(o Outcome) bool {
	select {
	case c.ch <- o:
		return true
	default:
		return false
	}
}

// Wait blocks until an outcome is signalled or ctx is done. There is no
// implicit timeout.
func (c *Completion) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-c.ch:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d. A non-positive d waits indefinitely.
func (c *Completion) WaitTimeout(ctx context.Context, d time.Duration) (Outcome, error) {
	if d <= 0 {
		return c.Wait(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case o := <-c.ch:
		return o, nil
	case <-timer.C:
		// An outcome may have landed at the same instant.
		select {
		case o := <-c.ch:
			return o, nil
		default:
		}
		return Outcome{}, ErrTimeout
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Reset drops a pending outcome, if any.
func (c *Completion) Reset() {
	select {
	case <-c.ch:
	default:
	}
}
