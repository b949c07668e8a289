// Package relay queues frames from the radio receive context and forwards
// them toward the Receiver from the relay's main loop.
package relay

import (
	"sync/atomic"

	"meshlink/internal/radio"
)

// DefaultCapacity is the relay queue size when none is configured.
const DefaultCapacity = 64

// Ring is a fixed-capacity single-producer single-consumer queue. Push is
// called from the radio receive context only and Pop from the main loop
// only. When full, the new frame is dropped and counted.
type Ring struct {
	buf     []radio.Frame
	head    atomic.Uint64 // next slot to pop, written by consumer
	tail    atomic.Uint64 // next slot to push, written by producer
	dropped atomic.Uint64
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]radio.Frame, capacity)}
}

// Push enqueues f. It never blocks.
func (r *Ring) Push(f radio.Frame) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail%uint64(len(r.buf))] = f
	r.tail.Store(tail + 1)
	return true
}

// Pop dequeues the oldest frame.
func (r *Ring) Pop() (radio.Frame, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return radio.Frame{}, false
	}
	i := head % uint64(len(r.buf))
	f := r.buf[i]
	r.buf[i] = radio.Frame{}
	r.head.Store(head + 1)
	return f, true
}

func (r *Ring) Len() int        { return int(r.tail.Load() - r.head.Load()) }
func (r *Ring) Cap() int        { return len(r.buf) }
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }
