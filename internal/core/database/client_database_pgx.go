package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

type DatabaseClient struct {
	db  *sql.DB
	dim int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is empty", core.ErrInvalidConfiguration)
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	ping := func() error { return db.PingContext(pingCtx) }
	notify := func(err error, wait time.Duration) {
		logrus.WithError(err).WithField("retry_in", wait).Warn("database not ready")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(backoff.NewExponentialBackOff(), pingCtx), notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, dim: cfg.EmbedDim}, nil
}

// buildDSN appends CA verification params when a certificate path is given.
func buildDSN(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("%w: ssl cert not accessible at %q: %w", core.ErrInvalidConfiguration, certPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid DATABASE_URL: %w", core.ErrInvalidConfiguration, err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents (id, user_id, file_name, storage_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.Status, doc.CreatedAt)
	return err
}

const documentColumns = `id, user_id, file_name, storage_url, status, page_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	var d models.Document
	if err := s.Scan(&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.Status, &d.PageCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// checkID rejects ids that cannot name a row. Postgres would fail such a
// UUID comparison with SQLSTATE 22P02 instead of returning no rows.
func checkID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	if err := checkID("document", id); err != nil {
		return nil, err
	}
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeleteDocument removes the row; chunks go with it through ON DELETE CASCADE.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	if err := checkID("document", id); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// transition moves a processing document to a terminal status. Zero rows
// affected means the document is missing or already terminal.
func transition(ctx context.Context, ex execer, id string, status models.DocumentStatus, pageCount *int) error {
	if !models.StatusProcessing.CanTransition(status) {
		return fmt.Errorf("%w: processing -> %s", core.ErrInvalidTransition, status)
	}
	if err := checkID("document", id); err != nil {
		return err
	}
	const q = `
		UPDATE documents
		SET status = $2, page_count = COALESCE($3, page_count)
		WHERE id = $1 AND status = 'processing'
	`
	res, err := ex.ExecContext(ctx, q, id, status, pageCount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current models.DocumentStatus
	err = ex.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, current, status)
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	return transition(ctx, c.db, id, status, nil)
}

// FinalizeDocument writes all chunks and the terminal status in one transaction.
func (c *DatabaseClient) FinalizeDocument(ctx context.Context, id string, status models.DocumentStatus, pageCount int, chunks []models.DocumentChunk) error {
	for _, ch := range chunks {
		if len(ch.Embedding) != c.dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d", core.ErrDimensionMismatch, ch.ChunkIndex, len(ch.Embedding), c.dim)
		}
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := transition(ctx, tx, id, status, &pageCount); err != nil {
		return err
	}

	if len(chunks) > 0 {
		const q = `
			INSERT INTO chunks (id, document_id, user_id, content, chunk_index, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range chunks {
			ch := &chunks[i]
			if _, err := stmt.ExecContext(ctx,
				ch.ID, ch.DocumentID, ch.UserID, ch.Content, ch.ChunkIndex, pgvector.NewVector(ch.Embedding),
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
			}
		}
	}
	return tx.Commit()
}

// SearchChunks ranks the owner's chunks by cosine similarity to queryVec.
func (c *DatabaseClient) SearchChunks(ctx context.Context, userID string, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	if len(queryVec) != c.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", core.ErrDimensionMismatch, len(queryVec), c.dim)
	}
	if limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT content, 1 - (embedding <=> $2) AS similarity
		FROM chunks
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, userID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(&sc.Content, &sc.Similarity); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Conversations

func (c *DatabaseClient) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if err := checkID("conversation", id); err != nil {
		return nil, err
	}
	const q = `SELECT id, user_id, title, created_at FROM conversations WHERE id = $1`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string, newestFirst bool) ([]models.Message, error) {
	if err := checkID("conversation", conversationID); err != nil {
		return nil, err
	}
	q := `
		SELECT id, conversation_id, user_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	if newestFirst {
		q = `
			SELECT id, conversation_id, user_id, role, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, seq DESC
		`
	}
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveChatTurn inserts conv (when non-nil) and msgs in one transaction.
func (c *DatabaseClient) SaveChatTurn(ctx context.Context, conv *models.Conversation, msgs ...*models.Message) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if conv != nil {
		const q = `INSERT INTO conversations (id, user_id, title, created_at) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, q, conv.ID, conv.UserID, conv.Title, conv.CreatedAt); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
	}

	const q = `
		INSERT INTO messages (id, conversation_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, q, m.ID, m.ConversationID, m.UserID, m.Role, m.Content, m.CreatedAt); err != nil {
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}
	return tx.Commit()
}

var _ core.DbClient = (*DatabaseClient)(nil)
