package gstreamer

import (
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/delivery"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

const (
	portQueueDepth = 64
	// bufferWait bounds how long a frame waits for the caller to send an
	// output buffer before it is failed.
	bufferWait = 2 * time.Second
)

type port struct {
	name   string
	output bool
	comp   *component

	// head receives data on input ports, tail sends it on output ports.
	head *gst.Element
	tail *gst.Element
	// encoder is set on the encoder's ports.
	encoder *encoder
	// wait overrides bufferWait when set.
	wait time.Duration

	commitFn func(pipeline.Format) error
	paramFn  func(pipeline.Parameter) error

	mu        sync.Mutex
	format    pipeline.Format
	reqs      pipeline.BufferRequirements
	committed bool
	enabled   bool
	peer      *port
	cb        pipeline.BufferCallback
	queue     chan *pipeline.Buffer
	stop      chan struct{}
	inflight  sync.WaitGroup
}

func newPort(c *component, name string, output bool) *port {
	return &port{comp: c, name: name, output: output}
}

func (p *port) Name() string { return p.name }

func (p *port) Format() pipeline.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

func (p *port) SetFormat(f pipeline.Format) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.format = f
	p.committed = false
}

func (p *port) CommitFormat() error {
	f := p.Format()
	if f.Encoding == "" {
		return pipeline.StatusInvalid
	}
	if p.commitFn != nil {
		if err := p.commitFn(f); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.committed = true
	p.mu.Unlock()
	return nil
}

func (p *port) BufferRequirements() pipeline.BufferRequirements {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reqs
}

func (p *port) SetBuffers(num, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs.Num = num
	p.reqs.Size = size
}

func (p *port) SetParameter(param pipeline.Parameter) error {
	if p.paramFn == nil {
		return pipeline.StatusNotImplemented
	}
	return p.paramFn(param)
}

func (p *port) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *port) Enable(cb pipeline.BufferCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return pipeline.StatusInvalid
	}
	p.enabled = true
	p.cb = cb
	if p.output && cb != nil {
		p.queue = make(chan *pipeline.Buffer, portQueueDepth)
		p.stop = make(chan struct{})
	}
	return nil
}

// Disable waits for a delivery in progress, then returns every queued
// buffer to its pool.
func (p *port) Disable() error {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return pipeline.StatusInvalid
	}
	p.enabled = false
	stop, queue := p.stop, p.queue
	p.stop, p.queue, p.cb = nil, nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	p.inflight.Wait()

	for drained := queue == nil; !drained; {
		select {
		case buf := <-queue:
			buf.Release()
		default:
			drained = true
		}
	}
	return nil
}

func (p *port) SendBuffer(buf *pipeline.Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.queue == nil {
		return pipeline.StatusNotReady
	}
	select {
	case p.queue <- buf:
		return nil
	default:
		return pipeline.StatusNoSpace
	}
}

// emit copies one encoded frame into queued buffers and hands each to the
// port callback. A failed frame is a single empty buffer flagged
// TransmissionFailed. When no output buffer arrives in time the frame is
// failed through a pool-less event buffer, so a waiter is always released.
func (p *port) emit(data []byte, failed bool) {
	p.mu.Lock()
	if !p.enabled || p.queue == nil {
		p.mu.Unlock()
		p.comp.b.log.Warn("gstreamer: frame dropped, output port not enabled", "port", p.name)
		return
	}
	queue, stop, cb := p.queue, p.stop, p.cb
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	wait := p.wait
	if wait <= 0 {
		wait = bufferWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for off := 0; ; {
		var buf *pipeline.Buffer
		select {
		case buf = <-queue:
		case <-stop:
			return
		case <-timer.C:
			p.comp.b.log.Error("gstreamer: no output buffer available, frame failed",
				"port", p.name,
				"error", &delivery.Error{Reason: delivery.ReasonPoolExhausted, Expected: len(data), Written: off},
			)
			cb(p, &pipeline.Buffer{Flags: pipeline.FlagTransmissionFailed})
			return
		}

		if failed {
			buf.Length = 0
			buf.Flags = pipeline.FlagTransmissionFailed
			cb(p, buf)
			return
		}

		off += buf.Fill(data[off:])
		last := off >= len(data)
		if last {
			buf.Flags |= pipeline.FlagFrameEnd
		}
		cb(p, buf)
		if last {
			return
		}
		if !timer.Stop() {
			<-timer.C
		}
		timer.Reset(wait)
	}
}
