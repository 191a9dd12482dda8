// Package queue provides the unbounded FIFO used to hand work between the
// simulation goroutine and the network worker.
package queue

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is an unbounded, goroutine-safe FIFO. Producers never block and
// TryDequeue never waits, so neither side of the bridge can stall the other.
type Queue[T any] struct {
	mu    sync.Mutex
	items deque.Deque[T]
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends v to the tail.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items.PushBack(v)
	q.mu.Unlock()
}

// TryDequeue removes and returns the head item. It reports false
// immediately when the queue is empty.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.items.PopFront(), true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool { return q.Len() == 0 }

// Clear drops every queued item and returns how many there were.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	q.items.Clear()
	return n
}
