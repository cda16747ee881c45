package ingestion_engine

import (
	"fmt"
	"time"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/queue"
)

// DefaultBatchSize keeps embedding requests well under upstream limits.
const DefaultBatchSize = 100

// DefaultJobTimeout bounds one background ingestion.
const DefaultJobTimeout = 5 * time.Minute

// IngestConfig tunes the pipeline.
//
// ChunkSize:    window width in characters (e.g., 512).
// ChunkOverlap: characters shared by consecutive windows (e.g., 50).
// BatchSize:    how many chunks to embed in one request (e.g., 100).
// EmbedDim:     required embedding dimension; every vector is checked against it.
// JobTimeout:   upper bound for one background job.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	EmbedDim     int
	JobTimeout   time.Duration
}

// Validate checks the config before any document is processed.
func (c *IngestConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: ingest config is nil", core.ErrInvalidConfiguration)
	}
	if err := ValidateChunking(c.ChunkSize, c.ChunkOverlap); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: embed batch size must be positive, got %d", core.ErrInvalidConfiguration, c.BatchSize)
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", core.ErrInvalidConfiguration, c.EmbedDim)
	}
	return nil
}

// DocumentIngestor orchestrates extract -> chunk -> embed -> persist:
//
// db:        persistence for documents and chunks.
// obj:       object storage holding the uploaded files.
// embedder:  embedding provider (OpenAI/Gemini).
// extractor: PDF text extraction.
// jobs:      queue of ingestion jobs consumed by Start.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	cfg       *IngestConfig
	jobs      queue.JobQueue
}
