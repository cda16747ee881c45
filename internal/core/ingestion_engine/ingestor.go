package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/docchat/internal/core/queue"
	"github.com/markdave123-py/docchat/internal/models"
)

// Ingestor is what the upload path and the worker need from the pipeline.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, job queue.IngestJob) error
	Ingest(ctx context.Context, docID string, data []byte, storageURL, filename, userID string) (*models.Document, error)
	ProcessJob(ctx context.Context, job queue.IngestJob) error
}

var _ Ingestor = (*DocumentIngestor)(nil)
