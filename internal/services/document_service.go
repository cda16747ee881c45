package services

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/queue"
	"github.com/markdave123-py/docchat/internal/models"
)

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	ingestor ingestion_engine.Ingestor
	inline   bool
}

// NewDocumentService wires uploads to ingestion. With inline set, Upload runs
// the pipeline before returning; otherwise it enqueues a job.
func NewDocumentService(db core.DbClient, storage core.ObjectClient, ing ingestion_engine.Ingestor, inline bool) *DocumentService {
	return &DocumentService{db: db, storage: storage, ingestor: ing, inline: inline}
}

// Upload stores the file and starts ingestion for userID.
func (s *DocumentService) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (*models.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFile, filename)
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	docID := uuid.NewString()
	location, err := s.storage.UploadFile(ctx, s.objectKey(userID, docID, filename), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "filename": filename})

	if s.inline {
		doc, err := s.ingestor.Ingest(ctx, docID, data, location, filename, userID)
		if err != nil {
			s.discard(ctx, location)
			return nil, err
		}
		log.WithField("document_id", doc.ID).Info("document ingested inline")
		return doc, nil
	}

	doc := &models.Document{
		ID:         docID,
		UserID:     userID,
		FileName:   filename,
		StorageURL: location,
		Status:     models.StatusProcessing,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		s.discard(ctx, location)
		return nil, fmt.Errorf("create document: %w", err)
	}

	job := queue.IngestJob{DocumentID: doc.ID, StorageURL: location, FileName: filename, UserID: userID}
	if err := s.ingestor.Enqueue(ctx, job); err != nil {
		// nothing will ever pick this document up
		if stErr := s.db.UpdateDocumentStatus(context.WithoutCancel(ctx), doc.ID, models.StatusFailed); stErr != nil {
			log.WithError(stErr).Error("mark unqueued document failed")
		}
		return nil, fmt.Errorf("enqueue ingestion: %w", err)
	}

	log.WithField("document_id", doc.ID).Info("document queued for ingestion")
	return doc, nil
}

func (s *DocumentService) discard(ctx context.Context, location string) {
	if err := s.storage.DeleteFile(context.WithoutCancel(ctx), location); err != nil {
		logrus.WithError(err).WithField("location", location).Warn("delete upload after failure")
	}
}

// Get returns one of userID's documents. Documents of other owners are
// reported as not found.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	if err := knownID("document", id); err != nil {
		return nil, err
	}
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// knownID answers ErrNotFound for ids that are not UUIDs, since no stored
// row can carry one.
func knownID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

// objectKey creates a consistent storage key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
