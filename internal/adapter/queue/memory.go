// Package queue carries payment IDs from the dispatcher to processing workers.
// A failed handler is never retried by the queue: the payment record already
// holds its terminal state, and redelivering a processed ID is a no-op at best.
package queue

import (
	"context"
	"errors"
	"sync"

	"agentpay/internal/core/ports"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue is closed")

// MemoryQueue is a buffered channel shared by all workers of one process.
type MemoryQueue struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a queue that holds up to size pending IDs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish enqueues paymentID, blocking while the buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, paymentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- paymentID:
		return nil
	}
}

// Consume runs workerCount workers until ctx is done or the queue is closed.
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler ports.PaymentHandler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case paymentID, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, paymentID)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Close stops accepting new IDs. Workers drain what is buffered and exit.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}

// Len reports how many IDs are waiting.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
