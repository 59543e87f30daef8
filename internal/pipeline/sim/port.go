package sim

import (
	"fmt"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

const portQueueDepth = 64

type frame struct {
	data   []byte
	failed bool
}

type port struct {
	comp   *component
	name   string
	output bool

	mu        sync.Mutex
	format    pipeline.Format
	reqs      pipeline.BufferRequirements
	committed bool
	enabled   bool
	cb        pipeline.BufferCallback
	peer      *port

	queue  chan *pipeline.Buffer
	frames chan frame
	stop   chan struct{}
	done   chan struct{}
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
	if err := p.comp.b.fault(p.name + ".commit"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format.Encoding == "" {
		return fmt.Errorf("sim: %s has no encoding: %w", p.name, pipeline.StatusInvalid)
	}
	if p.format.Encoding != pipeline.EncodingJPEG && (p.format.Width <= 0 || p.format.Height <= 0) {
		return fmt.Errorf("sim: %s has no frame size: %w", p.name, pipeline.StatusInvalid)
	}
	p.committed = true
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
	if err := p.comp.b.fault(p.name + "." + param.ID().String()); err != nil {
		return err
	}
	b := p.comp.b

	switch v := param.(type) {
	case pipeline.CameraNum:
		if v.Num < 0 || v.Num >= b.cameras {
			return pipeline.StatusNotFound
		}
	case pipeline.JPEGQuality:
		if v.Quality < 0 || v.Quality > 100 {
			return pipeline.StatusInvalid
		}
		p.comp.mu.Lock()
		p.comp.quality = v.Quality
		p.comp.mu.Unlock()
	case pipeline.ExifTag:
		b.mu.Lock()
		b.pendingTags = append(b.pendingTags, v.Tag)
		b.mu.Unlock()
	case pipeline.ExifDisable:
		b.mu.Lock()
		b.exifDisabled = v.Disable
		b.mu.Unlock()
	case pipeline.Capture:
		if v.Enable {
			return p.capture()
		}
	}
	return nil
}

func (p *port) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *port) Enable(cb pipeline.BufferCallback) error {
	if err := p.comp.b.fault(p.name + ".enable"); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return pipeline.StatusInvalid
	}
	p.enabled = true
	p.cb = cb
	if p.output && cb != nil {
		p.queue = make(chan *pipeline.Buffer, portQueueDepth)
		p.frames = make(chan frame, 4)
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.deliver(p.stop, p.done)
	}
	p.comp.b.record(p.name+".enable", func(h *Handles) { h.EnabledPorts++ })
	return nil
}

// Disable stops delivery and hands every buffer still held by the port back
// to its pool.
func (p *port) Disable() error {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return pipeline.StatusInvalid
	}
	p.enabled = false
	stop, done, queue := p.stop, p.done, p.queue
	p.stop, p.done, p.queue, p.frames = nil, nil, nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	for drained := queue == nil; !drained; {
		select {
		case buf := <-queue:
			buf.Release()
		default:
			drained = true
		}
	}

	p.comp.b.record(p.name+".disable", func(h *Handles) { h.EnabledPorts-- })
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

// capture encodes one frame on the encoder connected to this port.
func (p *port) capture() error {
	p.mu.Lock()
	enabled, peer, format := p.enabled, p.peer, p.format
	p.mu.Unlock()
	if !enabled || peer == nil {
		return pipeline.StatusNotConnected
	}

	enc := peer.comp
	if !enc.isEnabled() || len(enc.outputs) == 0 {
		return pipeline.StatusNotReady
	}
	out := enc.outputs[0]

	out.mu.Lock()
	frames := out.frames
	out.mu.Unlock()
	if frames == nil {
		return pipeline.StatusNotReady
	}

	enc.mu.Lock()
	quality := enc.quality
	enc.mu.Unlock()

	b := p.comp.b
	failed := b.takeFrameFault()
	var data []byte
	if !failed {
		var err error
		data, err = encodeTestPattern(format.Width, format.Height, quality, b.Captures())
		if err != nil {
			return fmt.Errorf("sim: encode test pattern: %w", pipeline.StatusCorrupt)
		}
	}

	select {
	case frames <- frame{data: data, failed: failed}:
		b.log.Debug("sim: capture triggered", "bytes", len(data), "failed", failed)
		return nil
	default:
		return pipeline.StatusAgain
	}
}

// deliver runs in the backend's own goroutine and invokes the port callback
// once per returned buffer.
func (p *port) deliver(stop, done chan struct{}) {
	defer close(done)

	p.mu.Lock()
	frames, queue, cb := p.frames, p.queue, p.cb
	p.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case f := <-frames:
			if !p.emit(f, queue, cb, stop) {
				return
			}
		}
	}
}

func (p *port) emit(f frame, queue chan *pipeline.Buffer, cb pipeline.BufferCallback, stop chan struct{}) bool {
	data := f.data
	for {
		var buf *pipeline.Buffer
		select {
		case <-stop:
			return false
		case buf = <-queue:
		}

		if f.failed {
			buf.Length = 0
			buf.Flags = pipeline.FlagTransmissionFailed
			cb(p, buf)
			return true
		}

		n := buf.Fill(data)
		data = data[n:]
		if len(data) == 0 {
			buf.Flags |= pipeline.FlagFrameEnd
		}
		cb(p, buf)
		if len(data) == 0 {
			return true
		}
	}
}
