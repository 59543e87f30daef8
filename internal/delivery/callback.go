// Package delivery implements the encoder output callback: it writes each
// delivered buffer to the armed destination, recycles buffers through the
// pool and signals the waiting capture loop once per frame.
package delivery

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

// ErrArmed is returned by Arm while a frame is still in progress.
var ErrArmed = errors.New("delivery: a frame is already armed")

// State is the per-frame delivery state.
type State int

const (
	Idle State = iota
	Armed
	Receiving
	Complete
	Failed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Receiving:
		return "receiving"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a frame.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// Reason says why a buffer could not be delivered.
type Reason int

const (
	ReasonShortWrite Reason = iota
	ReasonTransmission
	ReasonPoolExhausted
	ReasonResubmit
)

func (r Reason) String() string {
	switch r {
	case ReasonShortWrite:
		return "short_write"
	case ReasonTransmission:
		return "transmission_failed"
	case ReasonPoolExhausted:
		return "pool_exhausted"
	case ReasonResubmit:
		return "resubmit_failed"
	default:
		return "unknown"
	}
}

// Error is a buffer delivery failure.
type Error struct {
	Reason   Reason
	Expected int
	Written  int
	Err      error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonShortWrite:
		if e.Err != nil {
			return fmt.Sprintf("delivery: short write (%d of %d bytes): %v", e.Written, e.Expected, e.Err)
		}
		return fmt.Sprintf("delivery: short write (%d of %d bytes)", e.Written, e.Expected)
	case ReasonTransmission:
		return "delivery: co-processor reported transmission failure"
	default:
		if e.Err != nil {
			return fmt.Sprintf("delivery: %s: %v", e.Reason, e.Err)
		}
		return "delivery: " + e.Reason.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Stats are cumulative callback counters.
type Stats struct {
	BuffersDelivered uint64
	BuffersDiscarded uint64
	BytesWritten     uint64
	ShortWrites      uint64
	PoolExhausted    uint64
	FramesComplete   uint64
	FramesFailed     uint64
}

// CallbackContext is the state shared between the capture loop and the
// delivery context. The destination is only written while armed.
type CallbackContext struct {
	pool       *pipeline.Pool
	completion *Completion
	log        *slog.Logger

	mu      sync.Mutex
	dest    io.Writer
	state   State
	bytes   int64
	buffers int
	traceID string
	err     error

	delivered     atomic.Uint64
	discarded     atomic.Uint64
	bytesWritten  atomic.Uint64
	shortWrites   atomic.Uint64
	poolExhausted atomic.Uint64
	complete      atomic.Uint64
	failed        atomic.Uint64
}

// NewCallbackContext creates a callback context feeding from pool and
// signalling completion.
func NewCallbackContext(pool *pipeline.Pool, completion *Completion, logger *slog.Logger) *CallbackContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackContext{
		pool:       pool,
		completion: completion,
		log:        logger,
	}
}

// Arm points the callback at dest for the next frame.
func (c *CallbackContext) Arm(dest io.Writer, traceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Armed || c.state == Receiving {
		return ErrArmed
	}
	c.completion.Reset()
	c.dest = dest
	c.state = Armed
	c.bytes = 0
	c.buffers = 0
	c.traceID = traceID
	c.err = nil
	return nil
}

// Disarm clears the destination and returns the frame outcome. Buffers
// delivered afterwards are discarded.
func (c *CallbackContext) Disarm() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := c.outcomeLocked()
	c.dest = nil
	c.state = Idle
	return o
}

// State returns the current frame state.
func (c *CallbackContext) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns cumulative counters.
func (c *CallbackContext) Stats() Stats {
	return Stats{
		BuffersDelivered: c.delivered.Load(),
		BuffersDiscarded: c.discarded.Load(),
		BytesWritten:     c.bytesWritten.Load(),
		ShortWrites:      c.shortWrites.Load(),
		PoolExhausted:    c.poolExhausted.Load(),
		FramesComplete:   c.complete.Load(),
		FramesFailed:     c.failed.Load(),
	}
}

// OnBuffer is the encoder output port callback.
//
// It runs in the backend's delivery context:
//  1. Writes the payload if a frame is armed (a short write fails the frame)
//  2. Ends the frame on FrameEnd or TransmissionFailed
//  3. Releases the buffer and, while the port is enabled, sends a fresh one
//  4. Signals completion once, after the buffer bookkeeping is done
func (c *CallbackContext) OnBuffer(port pipeline.Port, buf *pipeline.Buffer) {
	c.delivered.Add(1)

	var (
		signal  bool
		outcome Outcome
	)

	c.mu.Lock()
	if c.dest != nil && (c.state == Armed || c.state == Receiving) {
		c.state = Receiving
		c.buffers++

		if payload := buf.Payload(); len(payload) > 0 {
			n, err := c.dest.Write(payload)
			if n > 0 {
				c.bytes += int64(n)
				c.bytesWritten.Add(uint64(n))
			}
			if err != nil || n != len(payload) {
				c.shortWrites.Add(1)
				c.err = &Error{Reason: ReasonShortWrite, Expected: len(payload), Written: n, Err: err}
				c.state = Failed
			}
		}

		if c.state == Receiving {
			switch {
			case buf.Flags.Has(pipeline.FlagTransmissionFailed):
				c.err = &Error{Reason: ReasonTransmission}
				c.state = Failed
			case buf.Flags.Has(pipeline.FlagFrameEnd):
				c.state = Complete
			}
		}

		if c.state.Terminal() {
			signal = true
			outcome = c.outcomeLocked()
		}
	} else {
		c.discarded.Add(1)
	}
	c.mu.Unlock()

	buf.Release()
	c.resubmit(port)

	if !signal {
		return
	}
	if outcome.State == Complete {
		c.complete.Add(1)
	} else {
		c.failed.Add(1)
		c.log.Warn("delivery: frame failed",
			"trace_id", outcome.TraceID,
			"bytes", outcome.Bytes,
			"error", outcome.Err,
		)
	}
	if !c.completion.Signal(outcome) {
		c.log.Warn("delivery: completion already pending, outcome dropped", "trace_id", outcome.TraceID)
	}
}

func (c *CallbackContext) resubmit(port pipeline.Port) {
	if !port.IsEnabled() {
		return
	}

	fresh := c.pool.Get()
	if fresh == nil {
		c.poolExhausted.Add(1)
		c.log.Warn("delivery: no buffer available to resubmit",
			"port", port.Name(),
			"error", &Error{Reason: ReasonPoolExhausted},
		)
		return
	}
	if err := port.SendBuffer(fresh); err != nil {
		fresh.Release()
		// The port may have been disabled between the check and the send.
		if port.IsEnabled() {
			c.log.Warn("delivery: unable to return a buffer to the port",
				"port", port.Name(),
				"error", &Error{Reason: ReasonResubmit, Err: err},
			)
		}
	}
}

func (c *CallbackContext) outcomeLocked() Outcome {
	return Outcome{
		State:   c.state,
		Bytes:   c.bytes,
		Buffers: c.buffers,
		TraceID: c.traceID,
		Err:     c.err,
	}
}
