package pipeline

import (
	"fmt"
	"sync"
)

// Pool is a fixed set of pre-allocated buffers for an output port.
//
// Every buffer is either queued in the pool or in flight (held by a port or
// a callback). Queued()+InFlight() == Count() for the life of the pool.
type Pool struct {
	mu        sync.Mutex
	queue     []*Buffer
	inFlight  int
	count     int
	size      int
	destroyed bool
}

// NewPool allocates num buffers of size bytes each.
func NewPool(num, size int) (*Pool, error) {
	if num <= 0 {
		return nil, fmt.Errorf("pipeline: pool buffer count must be > 0, got %d", num)
	}
	if size <= 0 {
		return nil, fmt.Errorf("pipeline: pool buffer size must be > 0, got %d", size)
	}

	p := &Pool{
		queue: make([]*Buffer, 0, num),
		count: num,
		size:  size,
	}
	for i := 0; i < num; i++ {
		p.queue = append(p.queue, &Buffer{Data: make([]byte, size), pool: p})
	}
	return p, nil
}

// Get takes a buffer off the queue, or returns nil when none is queued.
func (p *Pool) Get() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed || len(p.queue) == 0 {
		return nil
	}
	last := len(p.queue) - 1
	buf := p.queue[last]
	p.queue[last] = nil
	p.queue = p.queue[:last]
	p.inFlight++
	return buf
}

// Reclaim puts buf back on the queue. Buffers from another pool, or
// reclaimed twice, are ignored.
func (p *Pool) Reclaim(buf *Buffer) {
	if buf == nil || buf.pool != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight == 0 {
		return
	}
	for _, q := range p.queue {
		if q == buf {
			return
		}
	}
	buf.reset()
	p.queue = append(p.queue, buf)
	p.inFlight--
}

// DrainInto sends every queued buffer to port and returns how many were sent.
// A buffer the port refuses goes straight back to the queue.
func (p *Pool) DrainInto(port Port) (int, error) {
	sent := 0
	for {
		buf := p.Get()
		if buf == nil {
			return sent, nil
		}
		if err := port.SendBuffer(buf); err != nil {
			p.Reclaim(buf)
			return sent, fmt.Errorf("pipeline: send buffer %d to %s: %w", sent, port.Name(), err)
		}
		sent++
	}
}

// Counts returns a consistent (queued, in-flight) snapshot.
func (p *Pool) Counts() (queued, inFlight int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue), p.inFlight
}

// Queued returns the number of buffers waiting in the pool.
func (p *Pool) Queued() int {
	q, _ := p.Counts()
	return q
}

// InFlight returns the number of buffers held outside the pool.
func (p *Pool) InFlight() int {
	_, f := p.Counts()
	return f
}

// Count returns the configured number of buffers.
func (p *Pool) Count() int { return p.count }

// BufferSize returns the capacity of each buffer.
func (p *Pool) BufferSize() int { return p.size }

// Destroy stops the pool from handing out buffers. Buffers still in flight
// may be reclaimed afterwards; they are simply dropped with the pool.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = true
}
