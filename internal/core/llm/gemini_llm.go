package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", core.ErrInvalidConfiguration)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", core.ErrCompletionService, err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// session primes a chat with every turn but the last, which is returned as
// the message to send.
func (g *GeminiLLM) session(systemPrompt string, turns []core.ChatTurn, maxTokens int) (*genai.ChatSession, genai.Part, error) {
	if len(turns) == 0 {
		return nil, nil, fmt.Errorf("%w: no turns to send", core.ErrCompletionService)
	}

	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}

	cs := m.StartChat()
	for _, t := range turns[:len(turns)-1] {
		cs.History = append(cs.History, &genai.Content{
			Role:  geminiRole(t.Role),
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return cs, genai.Text(turns[len(turns)-1].Content), nil
}

func geminiRole(r models.Role) string {
	if r == models.RoleAssistant {
		return "model"
	}
	return "user"
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt string, turns []core.ChatTurn, maxTokens int) (string, error) {
	cs, msg, err := g.session(systemPrompt, turns, maxTokens)
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %w", core.ErrCompletionService, err)
	}
	return responseText(resp), nil
}

func (g *GeminiLLM) Stream(ctx context.Context, systemPrompt string, turns []core.ChatTurn, maxTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cs, msg, err := g.session(systemPrompt, turns, maxTokens)
		if err != nil {
			yield("", err)
			return
		}
		it := cs.SendMessageStream(ctx, msg)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("%w: gemini stream: %w", core.ErrCompletionService, err))
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
