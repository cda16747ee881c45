package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/queue"
	"github.com/markdave123-py/docchat/internal/models"
)

// NewDocumentIngestor validates cfg and wires the pipeline stages.
func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.DocumentExtractor, jobs queue.JobQueue, cfg *IngestConfig) (*DocumentIngestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &DocumentIngestor{
		db: db, obj: obj, embedder: emb, extractor: extractor, jobs: jobs, cfg: cfg,
	}, nil
}

// Start runs numWorkers goroutines reading from the job queue until ctx is done.
// A job is acknowledged only after ProcessJob returns.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			log := logrus.WithField("worker", w)
			for {
				job, err := i.jobs.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
						log.Info("ingest worker shutting down")
						return
					}
					log.WithError(err).Error("dequeue failed")
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
					continue
				}

				log.WithField("document_id", job.DocumentID).Info("processing document")
				// failures are already recorded on the document
				_ = i.ProcessJob(ctx, job)
				if err := i.jobs.Ack(context.WithoutCancel(ctx), job); err != nil {
					log.WithError(err).WithField("document_id", job.DocumentID).Warn("ack ingest job")
				}
			}
		}(w)
	}
}

// Enqueue schedules a document for background ingestion.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job queue.IngestJob) error {
	return i.jobs.Enqueue(ctx, job)
}

// Ingest runs the whole pipeline inline for an already stored file and
// returns the finished document under docID, or a fresh id when docID is
// empty. On failure the document row is removed and the error is returned;
// deleting the stored file is the caller's job.
func (i *DocumentIngestor) Ingest(ctx context.Context, docID string, data []byte, storageURL, filename, userID string) (*models.Document, error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	doc := &models.Document{
		ID:         docID,
		UserID:     userID,
		FileName:   filename,
		StorageURL: storageURL,
		Status:     models.StatusProcessing,
		CreatedAt:  time.Now().UTC(),
	}
	if err := i.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := i.run(ctx, doc.ID, userID, data); err != nil {
		if delErr := i.db.DeleteDocument(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			logrus.WithError(delErr).WithField("document_id", doc.ID).Error("cleanup of failed document")
		}
		return nil, err
	}

	return i.db.GetDocumentByID(ctx, doc.ID)
}

// ProcessJob is the background entry point for a pre-created document.
// Any failure is logged and recorded as status failed; the file stays in place.
func (i *DocumentIngestor) ProcessJob(ctx context.Context, job queue.IngestJob) error {
	log := logrus.WithFields(logrus.Fields{"document_id": job.DocumentID, "filename": job.FileName})

	doc, err := i.db.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		log.WithError(err).Error("load document for ingestion")
		if !errors.Is(err, core.ErrNotFound) {
			// the row may exist; do not leave it processing forever
			if stErr := i.db.UpdateDocumentStatus(context.WithoutCancel(ctx), job.DocumentID, models.StatusFailed); stErr != nil {
				log.WithError(stErr).Error("mark document failed")
			}
		}
		return fmt.Errorf("document %s: %w", job.DocumentID, err)
	}
	if doc.Status.Terminal() {
		// duplicate delivery
		log.WithField("status", doc.Status).Info("document already processed, skipping")
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, i.cfg.JobTimeout)
	defer cancel()

	err = i.processStored(jobCtx, job)
	if err == nil {
		log.Info("document processed successfully")
		return nil
	}

	log.WithError(err).Error("document processing failed")
	// the job context may already be expired; the status write must still land
	if stErr := i.db.UpdateDocumentStatus(context.WithoutCancel(ctx), job.DocumentID, models.StatusFailed); stErr != nil {
		log.WithError(stErr).Error("mark document failed")
	}
	return err
}

func (i *DocumentIngestor) processStored(ctx context.Context, job queue.IngestJob) error {
	data, err := i.obj.GetFile(ctx, job.StorageURL)
	if err != nil {
		return fmt.Errorf("get stored file: %w", err)
	}
	return i.run(ctx, job.DocumentID, job.UserID, data)
}

// run extracts, chunks, embeds and persists one document, finishing with a
// terminal status. Nothing is written until every embedding is in hand.
func (i *DocumentIngestor) run(ctx context.Context, docID, userID string, data []byte) error {
	log := logrus.WithField("document_id", docID)

	extracted, err := i.extractor.ExtractText(ctx, data)
	if err != nil {
		return err
	}

	if extracted.Text == "" {
		log.WithField("pages", extracted.PageCount).Info("no extractable text, marking empty")
		return i.db.FinalizeDocument(ctx, docID, models.StatusEmpty, extracted.PageCount, nil)
	}

	texts, err := ChunkText(extracted.Text, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return i.db.FinalizeDocument(ctx, docID, models.StatusEmpty, extracted.PageCount, nil)
	}

	vecs, err := EmbedBatches(ctx, i.embedder, texts, i.cfg.BatchSize, i.cfg.EmbedDim)
	if err != nil {
		return err
	}

	rows := make([]models.DocumentChunk, len(texts))
	for k := range texts {
		rows[k] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			UserID:     userID,
			Content:    texts[k],
			ChunkIndex: k,
			Embedding:  vecs[k],
		}
	}

	if err := i.db.FinalizeDocument(ctx, docID, models.StatusReady, extracted.PageCount, rows); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	log.WithFields(logrus.Fields{"pages": extracted.PageCount, "chunks": len(rows)}).Info("document ingested")
	return nil
}

// EmbedBatches embeds texts batchSize at a time. Batches are issued one after
// another and concatenated in request order, so out[k] belongs to texts[k].
// Every vector must have exactly dim entries.
func EmbedBatches(ctx context.Context, emb core.EmbeddingProvider, texts []string, batchSize, dim int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		vecs, err := emb.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: batch %d-%d returned %d vectors for %d texts", core.ErrEmbeddingService, start, end, len(vecs), end-start)
		}
		for k, v := range vecs {
			if len(v) != dim {
				return nil, fmt.Errorf("%w: chunk %d has %d dimensions, want %d", core.ErrDimensionMismatch, start+k, len(v), dim)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
