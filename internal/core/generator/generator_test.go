package generator

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/tokens"
	"github.com/markdave123-py/docchat/internal/models"
)

// echoLLM answers deterministically from the last turn and streams the same
// answer in three-byte pieces.
type echoLLM struct {
	system    string
	turns     []core.ChatTurn
	maxTokens int
}

func (e *echoLLM) answer(turns []core.ChatTurn) string {
	last := turns[len(turns)-1].Content
	return "answer(" + last[strings.LastIndex(last, "Question: ")+len("Question: "):] + ")"
}

func (e *echoLLM) Generate(_ context.Context, system string, turns []core.ChatTurn, maxTokens int) (string, error) {
	e.system, e.turns, e.maxTokens = system, turns, maxTokens
	return e.answer(turns), nil
}

func (e *echoLLM) Stream(_ context.Context, system string, turns []core.ChatTurn, maxTokens int) iter.Seq2[string, error] {
	e.system, e.turns, e.maxTokens = system, turns, maxTokens
	full := e.answer(turns)
	return func(yield func(string, error) bool) {
		for i := 0; i < len(full); i += 3 {
			if !yield(full[i:min(i+3, len(full))], nil) {
				return
			}
		}
	}
}

func TestGenerate_BuildsPrompt(t *testing.T) {
	llm := &echoLLM{}
	g := New(llm, tokens.CounterFunc(tokens.Approx), 3000, 0)

	history := []core.ChatTurn{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
	}
	chunks := []models.ScoredChunk{{Content: "Paris is the capital.", Similarity: 0.91}}

	out, err := g.Generate(context.Background(), "capital?", chunks, history)
	require.NoError(t, err)
	assert.Equal(t, "answer(capital?)", out)

	assert.Equal(t, SystemPrompt, llm.system)
	assert.Equal(t, DefaultMaxOutputTokens, llm.maxTokens)
	require.Len(t, llm.turns, 3)
	assert.Equal(t, history, llm.turns[:2])
	assert.Equal(t, models.RoleUser, llm.turns[2].Role)
	assert.Equal(t,
		"Context from your knowledge base:\n\n[Relevance: 0.91]\nParis is the capital.\n\n---\n\nQuestion: capital?",
		llm.turns[2].Content)
}

func TestGenerate_RespectsContextBudget(t *testing.T) {
	llm := &echoLLM{}
	g := New(llm, tokens.CounterFunc(func(string) int { return 10 }), 15, 500)

	chunks := []models.ScoredChunk{{Content: "kept", Similarity: 0.9}, {Content: "dropped", Similarity: 0.8}}
	_, err := g.Generate(context.Background(), "q", chunks, nil)
	require.NoError(t, err)

	require.Len(t, llm.turns, 1)
	assert.Contains(t, llm.turns[0].Content, "kept")
	assert.NotContains(t, llm.turns[0].Content, "dropped")
	assert.Equal(t, 500, llm.maxTokens)
}

func TestGenerateStream_ConcatenationMatchesGenerate(t *testing.T) {
	g := New(&echoLLM{}, tokens.CounterFunc(tokens.Approx), 3000, 1000)
	chunks := []models.ScoredChunk{{Content: "ctx", Similarity: 0.5}}
	history := []core.ChatTurn{{Role: models.RoleUser, Content: "hi"}}

	full, err := g.Generate(context.Background(), "what is streamed?", chunks, history)
	require.NoError(t, err)

	var sb strings.Builder
	pieces := 0
	for frag, err := range g.GenerateStream(context.Background(), "what is streamed?", chunks, history) {
		require.NoError(t, err)
		sb.WriteString(frag)
		pieces++
	}
	assert.Equal(t, full, sb.String())
	assert.Greater(t, pieces, 1)
}

type failingLLM struct{ echoLLM }

func (f *failingLLM) Generate(context.Context, string, []core.ChatTurn, int) (string, error) {
	return "", errors.Join(core.ErrCompletionService, errors.New("rate limited"))
}

func TestGenerate_PropagatesCompletionError(t *testing.T) {
	g := New(&failingLLM{}, tokens.CounterFunc(tokens.Approx), 3000, 1000)
	_, err := g.Generate(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, core.ErrCompletionService)
}
