package retrieval

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// Retriever embeds a query and ranks the owner's stored chunks against it.
type Retriever struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	topK     int
}

func NewRetriever(db core.DbClient, emb core.EmbeddingProvider, topK int) *Retriever {
	return &Retriever{db: db, embedder: emb, topK: topK}
}

// Retrieve returns at most topK chunks owned by userID, most similar first.
// A topK of zero or less uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query, userID string, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if topK <= 0 {
		return nil, nil
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", core.ErrEmbeddingService, len(vecs))
	}

	return r.db.SearchChunks(ctx, userID, vecs[0], topK)
}
