package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docchat/internal/core"
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

// NewGeminiEmbedder builds an embedder whose vectors must have dim entries.
// The genai API has no output size option, so dim must match the model.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", core.ErrInvalidConfiguration)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", core.ErrEmbeddingService, err)
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts sends all texts in one BatchEmbedContents request.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini batch embed: %w", core.ErrEmbeddingService, err)
	}

	return collectEmbeddings(resp.Embeddings, len(texts), g.dim)
}

// collectEmbeddings checks one vector per input, each of size dim when dim
// is set.
func collectEmbeddings(embs []*genai.ContentEmbedding, n, dim int) ([][]float32, error) {
	if len(embs) != n {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", core.ErrEmbeddingService, len(embs), n)
	}
	out := make([][]float32, n)
	for i, e := range embs {
		if e == nil {
			return nil, fmt.Errorf("%w: gemini returned no embedding for text %d", core.ErrEmbeddingService, i)
		}
		if dim > 0 && len(e.Values) != dim {
			return nil, fmt.Errorf("%w: gemini returned %d dimensions, want %d", core.ErrDimensionMismatch, len(e.Values), dim)
		}
		out[i] = e.Values
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
