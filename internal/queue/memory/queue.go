// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/macmap/instaingest/internal/ingest"
)

// ErrClosed is returned by Enqueue and Dequeue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
// Close stops accepting new items; the item channel itself is never
// closed, so an Enqueue racing shutdown (a retry timer firing late)
// gets ErrClosed instead of a send-on-closed-channel panic.
type Queue struct {
	ch   chan ingest.QueueItem
	done chan struct{}
	once sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:   make(chan ingest.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a target into the queue. It returns an error if the
// context ends or the queue has been closed.
func (q *Queue) Enqueue(ctx context.Context, item ingest.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next target, respecting context cancellation. After
// Close it drains any buffered items before reporting ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (ingest.QueueItem, error) {
	select {
	case <-ctx.Done():
		return ingest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return ingest.QueueItem{}, ErrClosed
		}
	}
}

// Close marks the queue closed. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
