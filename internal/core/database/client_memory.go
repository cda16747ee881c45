package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// MemoryClient is a process-local DbClient with brute-force cosine search.
// It backs DB_BACKEND=memory and the tests.
type MemoryClient struct {
	mu       sync.RWMutex
	dim      int
	docs     map[string]*models.Document
	chunks   []models.DocumentChunk
	convs    map[string]*models.Conversation
	messages []storedMessage
	seq      int64
}

// storedMessage keeps insertion order as a tie-breaker for equal timestamps.
type storedMessage struct {
	models.Message
	seq int64
}

func NewMemoryClient(embedDim int) *MemoryClient {
	return &MemoryClient{
		dim:   embedDim,
		docs:  make(map[string]*models.Document),
		convs: make(map[string]*models.Conversation),
	}
}

func (c *MemoryClient) Close() error { return nil }

func (c *MemoryClient) CreateDocument(_ context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	cp := *doc
	c.docs[doc.ID] = &cp
	return nil
}

func (c *MemoryClient) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (c *MemoryClient) ListDocumentsByUser(_ context.Context, userID string) ([]models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Document
	for _, d := range c.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *MemoryClient) DeleteDocument(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	delete(c.docs, id)
	kept := c.chunks[:0]
	for _, ch := range c.chunks {
		if ch.DocumentID != id {
			kept = append(kept, ch)
		}
	}
	c.chunks = kept
	return nil
}

func (c *MemoryClient) transition(id string, status models.DocumentStatus) (*models.Document, error) {
	d, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if !d.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, d.Status, status)
	}
	return d, nil
}

func (c *MemoryClient) UpdateDocumentStatus(_ context.Context, id string, status models.DocumentStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.transition(id, status)
	if err != nil {
		return err
	}
	d.Status = status
	return nil
}

func (c *MemoryClient) FinalizeDocument(_ context.Context, id string, status models.DocumentStatus, pageCount int, chunks []models.DocumentChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.transition(id, status)
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		if len(ch.Embedding) != c.dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d", core.ErrDimensionMismatch, ch.ChunkIndex, len(ch.Embedding), c.dim)
		}
	}
	c.chunks = append(c.chunks, chunks...)
	d.Status = status
	d.PageCount = &pageCount
	return nil
}

// ChunksByDocument returns a document's chunks in index order.
func (c *MemoryClient) ChunksByDocument(docID string) []models.DocumentChunk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.DocumentChunk
	for _, ch := range c.chunks {
		if ch.DocumentID == docID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (c *MemoryClient) SearchChunks(_ context.Context, userID string, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	if len(queryVec) != c.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", core.ErrDimensionMismatch, len(queryVec), c.dim)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var hits []models.ScoredChunk
	for _, ch := range c.chunks {
		if ch.UserID != userID {
			continue
		}
		hits = append(hits, models.ScoredChunk{Content: ch.Content, Similarity: cosine(queryVec, ch.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (c *MemoryClient) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.convs[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	cp := *conv
	return &cp, nil
}

func (c *MemoryClient) ListMessages(_ context.Context, conversationID string, newestFirst bool) ([]models.Message, error) {
	c.mu.RLock()
	var stored []storedMessage
	for _, m := range c.messages {
		if m.ConversationID == conversationID {
			stored = append(stored, m)
		}
	}
	c.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt) != newestFirst
		}
		return (a.seq < b.seq) != newestFirst
	})
	out := make([]models.Message, len(stored))
	for i, m := range stored {
		out[i] = m.Message
	}
	return out, nil
}

func (c *MemoryClient) SaveChatTurn(_ context.Context, conv *models.Conversation, msgs ...*models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	convID := ""
	if conv != nil {
		if _, ok := c.convs[conv.ID]; ok {
			return fmt.Errorf("conversation %s already exists", conv.ID)
		}
		convID = conv.ID
	}
	for _, m := range msgs {
		if m.ConversationID == convID {
			continue
		}
		if _, ok := c.convs[m.ConversationID]; !ok {
			return fmt.Errorf("conversation %s: %w", m.ConversationID, core.ErrNotFound)
		}
	}

	if conv != nil {
		cp := *conv
		c.convs[conv.ID] = &cp
	}
	for _, m := range msgs {
		c.seq++
		c.messages = append(c.messages, storedMessage{Message: *m, seq: c.seq})
	}
	return nil
}

var _ core.DbClient = (*MemoryClient)(nil)
