package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/markdave123-py/docchat/internal/core"
)

// OpenAIEmbedder calls the embeddings endpoint, retrying on rate limits.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, model string, dim int, opts ...option.RequestOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", core.ErrInvalidConfiguration)
	}
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIEmbedder{client: openai.NewClient(opts...), model: model, dim: dim}, nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.model,
	}
	if e.dim > 0 {
		params.Dimensions = openai.Int(int64(e.dim))
	}

	var out [][]float32
	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
		}
		out = make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(texts) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", d.Index))
			}
			out[d.Index] = toFloat32(d.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: openai embed: %w", core.ErrEmbeddingService, err)
	}
	return out, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
