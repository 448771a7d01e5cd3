// Package queue provides a generic thread-safe bounded queue with
// drop-oldest overflow semantics.
package queue

import (
	"sync"
)

// Bounded is a generic thread-safe queue with a hard capacity. When full, the
// oldest item is evicted to admit a new one. Insertion order is preserved.
type Bounded[T any] struct {
	mu       sync.Mutex
	capacity int
	items    []T
}

// NewBounded creates an empty queue with the given capacity. Capacities below
// one are clamped to one.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// Push appends an item, evicting the oldest when the queue is full. It
// reports whether an eviction happened.
func (q *Bounded[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	evicted := false
	if len(q.items) == q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		evicted = true
	}
	q.items = append(q.items, item)
	return evicted
}

// Latest returns the most recently pushed item without removing it.
func (q *Bounded[T]) Latest() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[len(q.items)-1], true
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty returns true if the queue has no items.
func (q *Bounded[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Clear removes all items from the queue.
func (q *Bounded[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// Snapshot returns a copy of the queued items in insertion order.
func (q *Bounded[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
