// Package queue carries ingestion jobs from the upload path to the workers.
package queue

import (
	"context"
	"errors"
)

// IngestJob is the payload of one background ingestion. It mirrors the
// arguments of the ingestion entry point exactly.
type IngestJob struct {
	DocumentID string `json:"document_id"`
	StorageURL string `json:"storage_url"`
	FileName   string `json:"filename"`
	UserID     string `json:"user_id"`
}

// ErrClosed is returned by Dequeue once the queue has been shut down.
var ErrClosed = errors.New("job queue closed")

// JobQueue carries jobs from producers to workers. Durable backends deliver
// at least once: a dequeued job stays owed until Ack, so a worker that dies
// mid-job may see it again. Consumers must tolerate duplicates.
type JobQueue interface {
	Enqueue(ctx context.Context, job IngestJob) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (IngestJob, error)
	// Ack marks a dequeued job as done.
	Ack(ctx context.Context, job IngestJob) error
	Close() error
}
