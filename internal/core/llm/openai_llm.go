package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

type OpenAILLM struct {
	client openai.Client
	model  string
}

func NewOpenAILLM(apiKey, model string, opts ...option.RequestOption) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", core.ErrInvalidConfiguration)
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAILLM{client: openai.NewClient(opts...), model: model}, nil
}

func (o *OpenAILLM) params(systemPrompt string, turns []core.ChatTurn, maxTokens int) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		if t.Role == models.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	p := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    o.model,
	}
	if maxTokens > 0 {
		p.MaxTokens = openai.Int(int64(maxTokens))
	}
	return p
}

func (o *OpenAILLM) Generate(ctx context.Context, systemPrompt string, turns []core.ChatTurn, maxTokens int) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(systemPrompt, turns, maxTokens))
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", core.ErrCompletionService, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) Stream(ctx context.Context, systemPrompt string, turns []core.ChatTurn, maxTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(systemPrompt, turns, maxTokens))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("%w: chat stream: %w", core.ErrCompletionService, err))
		}
	}
}

var _ core.LLMProvider = (*OpenAILLM)(nil)
