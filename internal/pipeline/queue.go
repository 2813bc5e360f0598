package pipeline

import (
	"context"
	"sync"
)

// Queue is an unbounded multi-producer single-consumer FIFO of results.
// Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []ResultRecord
	head   int
	closed bool
	wake   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

func (q *Queue) Push(r ResultRecord) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, r)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pop waits for the next record. It returns ErrQueueClosed once the queue is
// closed and empty, or ctx.Err().
func (q *Queue) Pop(ctx context.Context) (ResultRecord, error) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			r := q.items[q.head]
			q.items[q.head] = ResultRecord{}
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			}
			q.mu.Unlock()
			return r, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ResultRecord{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return ResultRecord{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Close rejects further pushes. Records already queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
