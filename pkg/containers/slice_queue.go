package containers

import (
	"sync"
)

// SliceQueue is a FIFO queue implemented
// by a Go slice.
type SliceQueue[T any] struct {
	mu    sync.Mutex
	elems []T

	// C is a signal for non-empty queue.
	// A consumer can select for C and then Pop
	// as many elements as possible in a for-select
	// loop.
	C chan struct{}
}

// NewSliceQueue creates a new SliceQueue.
func NewSliceQueue[T any]() *SliceQueue[T] {
	return &SliceQueue[T]{
		C: make(chan struct{}, 1),
	}
}

// Add adds an element to the end of the queue.
func (q *SliceQueue[T]) Add(elem T) {
	q.mu.Lock()
	q.elems = append(q.elems, elem)
	q.mu.Unlock()

	select {
	case q.C <- struct{}{}:
	default:
	}
}

// Pop removes the first element of the queue.
func (q *SliceQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.elems) == 0 {
		var zero T
		return zero, false
	}

	ret := q.elems[0]
	var zero T
	q.elems[0] = zero
	q.elems = q.elems[1:]
	return ret, true
}

// Peek returns the first element without removing it.
func (q *SliceQueue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.elems) == 0 {
		var zero T
		return zero, false
	}
	return q.elems[0], true
}

// Size returns the number of queued elements.
func (q *SliceQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.elems)
}

var _ Queue[int] = (*SliceQueue[int])(nil)
