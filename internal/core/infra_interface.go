package core

import (
	"context"

	"github.com/markdave123-py/docchat/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
// Lookups of missing rows return ErrNotFound.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// UpdateDocumentStatus moves a processing document to a terminal status.
	// Any other transition fails with ErrInvalidTransition.
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error

	// FinalizeDocument stores all chunks, the page count and the terminal
	// status in one transaction: either everything lands or nothing does.
	FinalizeDocument(ctx context.Context, id string, status models.DocumentStatus, pageCount int, chunks []models.DocumentChunk) error

	// SearchChunks returns the owner's chunks nearest to queryVec by cosine distance.
	SearchChunks(ctx context.Context, userID string, queryVec []float32, limit int) ([]models.ScoredChunk, error)

	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListMessages returns messages oldest first when newestFirst is false.
	ListMessages(ctx context.Context, conversationID string, newestFirst bool) ([]models.Message, error)

	// SaveChatTurn persists one exchange atomically. conv is created when non-nil.
	SaveChatTurn(ctx context.Context, conv *models.Conversation, msgs ...*models.Message) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// Locations are opaque strings returned by UploadFile.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (location string, err error)
	DeleteFile(ctx context.Context, location string) error
	GetFile(ctx context.Context, location string) ([]byte, error)
}
