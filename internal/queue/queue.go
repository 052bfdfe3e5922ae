// Package queue provides the FIFO task queue shared between the producers of an
// apartment and its single worker.
package queue

import (
	"container/list"
	"sync"
)

// Queue is a mutex-guarded FIFO. Any goroutine may push; the apartment worker is
// the only consumer. The lock is held only for the duration of a single
// operation, never while an element is being processed.
type Queue[T any] struct {
	mu    sync.Mutex
	items *list.List
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: list.New()}
}

// PushBack appends v to the back of the queue.
func (q *Queue[T]) PushBack(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushBack(v)
}

// PopFront removes and returns the oldest element. The second return value is
// false if the queue is empty.
func (q *Queue[T]) PopFront() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.items.Front()
	if e == nil {
		var zero T
		return zero, false
	}
	return q.items.Remove(e).(T), true
}

// RevertLastPush removes the most recently pushed element. It exists to undo a
// push whose wake-up notification could not be delivered, so that either both
// the enqueue and its notification take effect or neither does.
func (q *Queue[T]) RevertLastPush() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.items.Back()
	if e == nil {
		var zero T
		return zero, false
	}
	return q.items.Remove(e).(T), true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
