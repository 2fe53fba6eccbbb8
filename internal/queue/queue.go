// Package queue provides the bounded hand-off between webhook ingestion and
// dispatch, with a replay history for observers that attach late.
package queue

import (
	"context"
	"sync"
	"time"
)

const (
	// WebhookCapacity bounds the webhook event queue.
	WebhookCapacity = 50
	// LogCapacity bounds the diagnostic log broadcast queue.
	LogCapacity = 500
)

// Queue is a bounded multi-producer single-consumer queue. Enqueue never
// blocks; when the queue is full the oldest unconsumed item is dropped.
// A fixed-size history ring of the same capacity records the most recent
// items for replay.
type Queue[T any] struct {
	mu       sync.Mutex
	items    chan T
	history  []T
	head     int
	size     int
	capacity int
	closed   bool
}

// New creates a queue with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		items:    make(chan T, capacity),
		history:  make([]T, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an item without blocking, evicting the oldest queued item if
// the queue is full. It returns false once completion has been signalled.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	select {
	case q.items <- item:
	default:
		select {
		case <-q.items:
		default:
		}
		q.items <- item
	}

	q.record(item)
	return true
}

// DequeueAsync blocks until an item is available, returning false when the
// context is cancelled or the queue is completed and empty.
func (q *Queue[T]) DequeueAsync(ctx context.Context) (T, bool) {
	var zero T
	select {
	case item, ok := <-q.items:
		if !ok {
			return zero, false
		}
		return item, true
	case <-ctx.Done():
		return zero, false
	}
}

// History returns up to capacity of the most recently enqueued items in
// insertion order, including items that were evicted before consumption.
func (q *Queue[T]) History() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.size)
	for i := 0; i < q.size; i++ {
		out = append(out, q.history[(q.head+i)%q.capacity])
	}
	return out
}

// SignalCompletion closes the write side. Subsequent Enqueue calls are
// rejected; queued items remain consumable.
func (q *Queue[T]) SignalCompletion() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
	}
}

// WaitForQueueToDrainAsync blocks until every queued item has been consumed
// or the context is cancelled, returning the context error in the latter
// case.
func (q *Queue[T]) WaitForQueueToDrainAsync(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(q.items) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue[T]) record(item T) {
	if q.size == q.capacity {
		q.history[q.head] = item
		q.head = (q.head + 1) % q.capacity
		return
	}
	q.history[(q.head+q.size)%q.capacity] = item
	q.size++
}
