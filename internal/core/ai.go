package core

import (
	"context"
	"iter"

	"github.com/markdave123-py/docchat/internal/models"
)

// ChatTurn is one message of a prompt sent to a completion model.
type ChatTurn struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// EmbeddingProvider turns texts into fixed-dimension vectors, same order as input.
// Failures wrap ErrEmbeddingService.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider runs chat completions. Failures wrap ErrCompletionService.
type LLMProvider interface {
	// Generate returns the full completion for system + turns.
	Generate(ctx context.Context, systemPrompt string, turns []ChatTurn, maxTokens int) (string, error)
	// Stream yields text fragments as the model produces them. The sequence
	// represents a single live generation and cannot be restarted.
	Stream(ctx context.Context, systemPrompt string, turns []ChatTurn, maxTokens int) iter.Seq2[string, error]
}
