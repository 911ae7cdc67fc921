package pipeline

import (
	"sync"
)

// Slot is a single-item mailbox connecting exactly one producer to exactly
// one consumer. It never queues: a slot holds zero or one item, which
// bounds staleness at one in-flight item per direction. The two write
// policies cover the two ends of the pipeline:
//
//   - Offer drops the incoming item when the slot is occupied (the capture
//     side: never displace work the consumer is about to take).
//   - Replace overwrites an unconsumed item (the result side: the newest
//     result always wins).
type Slot[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	item   *T
	closed bool
	drops  uint64
}

// NewSlot returns an empty open slot.
func NewSlot[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Offer places the item if the slot is empty and returns true; otherwise
// the item is dropped and counted. Never blocks.
func (s *Slot[T]) Offer(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.item != nil {
		s.drops++
		return false
	}
	s.item = &item
	s.cond.Signal()
	return true
}

// Replace stores the item unconditionally, discarding any unconsumed
// previous item. Never blocks. Returns false only when the slot is closed.
func (s *Slot[T]) Replace(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.item != nil {
		s.drops++
	}
	s.item = &item
	s.cond.Signal()
	return true
}

// Poll removes and returns the pending item without blocking.
func (s *Slot[T]) Poll() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.item == nil {
		var zero T
		return zero, false
	}
	item := *s.item
	s.item = nil
	return item, true
}

// Take blocks until an item is available or the slot is closed. The second
// return is false once the slot is closed and drained.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.item == nil && !s.closed {
		s.cond.Wait()
	}
	if s.item == nil {
		var zero T
		return zero, false
	}
	item := *s.item
	s.item = nil
	return item, true
}

// Close wakes any blocked Take. Items already in the slot are still
// delivered; subsequent writes are rejected.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Drops reports how many items were discarded by contention, for
// observability only.
func (s *Slot[T]) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}
