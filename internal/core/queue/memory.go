package queue

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity is the buffer of the in-process queue.
const DefaultMemoryCapacity = 64

// MemoryQueue is an in-process queue backed by a buffered channel.
// Jobs are lost on restart, so delivery is at most once.
type MemoryQueue struct {
	jobs      chan IngestJob
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryQueue{
		jobs: make(chan IngestJob, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job IngestJob) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (IngestJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		return IngestJob{}, ErrClosed
	case <-ctx.Done():
		return IngestJob{}, ctx.Err()
	}
}

// Ack is a no-op; a dequeued job has already left the channel.
func (q *MemoryQueue) Ack(context.Context, IngestJob) error { return nil }

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

var _ JobQueue = (*MemoryQueue)(nil)
