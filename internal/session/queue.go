// ABOUTME: Unbounded FIFO used for the session task loop and the stdin outbox
// ABOUTME: Pushing never blocks, so callbacks can enqueue work from inside the loop

package session

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wake   chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{wake: make(chan struct{}, 1)}
}

// push appends v. It reports false once the queue is closed.
func (q *queue[T]) push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
	return true
}

// close stops further pushes. Items already queued are still handed out.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next blocks until items are available and returns all of them in order.
// Queued items are returned even when ctx is already done. It returns
// errQueueClosed once the queue is closed and empty.
func (q *queue[T]) next(ctx context.Context) ([]T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			batch := q.items
			q.items = nil
			q.mu.Unlock()
			return batch, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, errQueueClosed
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// runTasks executes queued functions one at a time until the queue is closed and
// drained. It is the only goroutine that touches loop-owned session state.
func runTasks(q *queue[func()]) {
	for {
		batch, err := q.next(context.Background())
		if err != nil {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}
