package gstreamer

import (
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCounts is a snapshot of bus errors by category.
type ErrorCounts struct {
	Device      uint64
	Negotiation uint64
	Encode      uint64
	Unknown     uint64
}

type errorCounters struct {
	device      atomic.Uint64
	negotiation atomic.Uint64
	encode      atomic.Uint64
	unknown     atomic.Uint64
}

func (c *errorCounters) add(category ErrorCategory) {
	switch category {
	case ErrCategoryDevice:
		c.device.Add(1)
	case ErrCategoryNegotiation:
		c.negotiation.Add(1)
	case ErrCategoryEncode:
		c.encode.Add(1)
	default:
		c.unknown.Add(1)
	}
}

// Errors returns the bus errors seen since the backend was created.
func (b *Backend) Errors() ErrorCounts {
	return ErrorCounts{
		Device:      b.errors.device.Load(),
		Negotiation: b.errors.negotiation.Load(),
		Encode:      b.errors.encode.Load(),
		Unknown:     b.errors.unknown.Load(),
	}
}

// monitorBus polls the pipeline bus until stop is closed. Errors and
// end-of-stream fail the capture pending on enc.
func (b *Backend) monitorBus(enc *encoder, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	bus := b.pipeline.GetPipelineBus()

	for {
		select {
		case <-stop:
			b.log.Debug("gstreamer: bus monitor stopped")
			return
		default:
		}

		// Short timeout keeps Disable responsive.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			b.errors.add(category)

			b.log.Error("gstreamer: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"status", category.Status().String(),
			)
			if enc != nil {
				enc.fail(category.String())
			}

		case gst.MessageEOS:
			b.log.Warn("gstreamer: end of stream received")
			if enc != nil {
				enc.fail("eos")
			}

		case gst.MessageStateChanged:
			if msg.Source() == b.pipeline.GetName() {
				old, new := msg.ParseStateChanged()
				b.log.Debug("gstreamer: pipeline state changed", "from", old, "to", new)
			}
		}
	}
}
