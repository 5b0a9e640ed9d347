// Package queue carries accepted XP events from the HTTP boundary to the
// worker pool.
//
// Two backends exist: a bounded in-memory channel for single-process
// deployments and a Redis list for sharing the backlog between processes.
package queue

import (
	"context"
	"sync"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/pkg/metrics"
)

const defaultQueueCapacity = 100_000

// Event is the queue payload.
type Event = model.XPEvent

// Queue is a bounded FIFO of XP events.
type Queue interface {
	// Enqueue never blocks; it reports false when the event was not
	// accepted because the queue is full, closed or ctx is done.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue streams events until the queue is closed and drained, or ctx
	// is done.
	Dequeue(ctx context.Context) <-chan Event

	// Len is the current backlog.
	Len(ctx context.Context) int

	// Close stops intake. Events already queued are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue is a Queue over a buffered channel sized to its capacity.
type InMemoryQueue struct {
	mu       sync.RWMutex
	ch       chan Event
	capacity int
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.ch = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	observeSize(0, q.capacity)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: events are values end to end
	if ctx.Err() != nil {
		enqueueFailed("context_cancelled")
		return false
	}

	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		enqueueFailed("closed")
		return false
	}

	select {
	case q.ch <- e:
		metrics.RecordQueueEnqueue()
		observeSize(len(q.ch), q.capacity)
		return true
	default:
		enqueueFailed("capacity_exceeded")
		return false
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for e := range q.ch {
			select {
			case out <- e:
				metrics.RecordQueueDequeue()
				observeSize(len(q.ch), q.capacity)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := len(q.ch)
	observeSize(n, q.capacity)
	return n
}

// Close implements Queue. It is idempotent.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func observeSize(size, capacity int) {
	metrics.UpdateQueueSize(size)
	if capacity > 0 {
		metrics.UpdateQueueUtilization(float64(size) / float64(capacity))
	}
}

func enqueueFailed(kind string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", kind)
}
