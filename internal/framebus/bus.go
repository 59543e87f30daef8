// Package framebus fans finished-frame events out to subscribers without
// ever blocking the publisher.
//
// A subscriber whose channel is full misses the event; the drop is counted.
// The capture loop publishes from its own goroutine, so a slow consumer
// (a broker round trip, a full disk) never delays the next frame.
//
//	bus := framebus.New[stillcapture.FrameResult]()
//	defer bus.Close()
//
//	events := make(chan stillcapture.FrameResult, 16)
//	bus.Subscribe("mqtt", events)
//	go publishAll(events)
//
//	bus.Publish(result)
package framebus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("framebus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("framebus: subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("framebus: bus is closed")
)

// Stats contains global and per-subscriber counters.
type Stats struct {
	// Published is the number of Publish calls on an open bus
	Published uint64
	// Sent is the sum of events delivered to all subscribers
	Sent uint64
	// Dropped is the sum of events missed because a channel was full
	Dropped uint64
	// Subscribers contains the per-subscriber breakdown
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber[T any] struct {
	ch      chan<- T
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes events of type T.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	closed      bool

	published atomic.Uint64
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subscribers: make(map[string]*subscriber[T])}
}

// Subscribe registers ch under id. The bus never closes ch.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return errors.New("framebus: subscriber channel cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	b.subscribers[id] = &subscriber[T]{ch: ch}
	return nil
}

// Unsubscribe removes the subscriber registered under id.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish offers v to every subscriber and returns immediately. Publishing
// on a closed bus returns ErrBusClosed and delivers nothing.
func (b *Bus[T]) Publish(v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	b.published.Add(1)

	for _, s := range b.subscribers {
		select {
		case s.ch <- v:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters. It keeps working after Close.
func (b *Bus[T]) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, s := range b.subscribers {
		sent, dropped := s.sent.Load(), s.dropped.Load()
		st.Sent += sent
		st.Dropped += dropped
		st.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}
	return st
}

// Close stops the bus. Subscriber channels stay open; closing them is the
// subscriber's job. Idempotent.
func (b *Bus[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
