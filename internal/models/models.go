package models

import (
	"time"
)

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusEmpty      DocumentStatus = "empty"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusEmpty || s == StatusFailed
}

// CanTransition reports whether a document may move from s to next.
// Only processing -> {ready, empty, failed} is legal.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	return s == StatusProcessing && next.Terminal()
}

// Role is the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Document represents a user-uploaded PDF.
type Document struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"user_id"`
	FileName   string         `db:"file_name" json:"filename"`
	StorageURL string         `db:"storage_url" json:"-"` // s3 URL or local path
	Status     DocumentStatus `db:"status" json:"status"`
	PageCount  *int           `db:"page_count" json:"page_count"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// DocumentChunk represents one text window of a document and its embedding.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Content    string    `db:"content" json:"content"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
}

// ScoredChunk is a retrieval hit; Similarity is 1 - cosine distance.
type ScoredChunk struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Conversation is a thread of messages for one owner.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     *string   `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message is one turn in a conversation.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           Role      `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
