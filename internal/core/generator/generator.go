package generator

import (
	"context"
	"fmt"
	"iter"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/assembler"
	"github.com/markdave123-py/docchat/internal/core/tokens"
	"github.com/markdave123-py/docchat/internal/models"
)

const SystemPrompt = `You are a helpful AI assistant with access to the user's personal knowledge base.
Use the provided context to answer the user's question accurately.
If the context doesn't contain relevant information, say so honestly. Don't make things up.
When referencing information from the context, be specific about what you found.`

// DefaultMaxOutputTokens caps every completion.
const DefaultMaxOutputTokens = 1000

type Generator struct {
	llm              core.LLMProvider
	counter          tokens.Counter
	maxContextTokens int
	maxOutputTokens  int
}

func New(llm core.LLMProvider, counter tokens.Counter, maxContextTokens, maxOutputTokens int) *Generator {
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}
	return &Generator{
		llm:              llm,
		counter:          counter,
		maxContextTokens: maxContextTokens,
		maxOutputTokens:  maxOutputTokens,
	}
}

// UserTurn embeds the assembled context ahead of the question.
func UserTurn(contextText, query string) string {
	return fmt.Sprintf("Context from your knowledge base:\n\n%s\n\n---\n\nQuestion: %s", contextText, query)
}

// Turns returns history (oldest first) followed by the grounded user turn.
func (g *Generator) Turns(query string, chunks []models.ScoredChunk, history []core.ChatTurn) []core.ChatTurn {
	contextText := assembler.BuildContextString(g.counter, chunks, g.maxContextTokens)

	turns := make([]core.ChatTurn, 0, len(history)+1)
	turns = append(turns, history...)
	return append(turns, core.ChatTurn{Role: models.RoleUser, Content: UserTurn(contextText, query)})
}

func (g *Generator) Generate(ctx context.Context, query string, chunks []models.ScoredChunk, history []core.ChatTurn) (string, error) {
	return g.llm.Generate(ctx, SystemPrompt, g.Turns(query, chunks, history), g.maxOutputTokens)
}

// GenerateStream yields fragments of one live generation. Callers concatenate
// them; nothing is persisted here.
func (g *Generator) GenerateStream(ctx context.Context, query string, chunks []models.ScoredChunk, history []core.ChatTurn) iter.Seq2[string, error] {
	return g.llm.Stream(ctx, SystemPrompt, g.Turns(query, chunks, history), g.maxOutputTokens)
}
