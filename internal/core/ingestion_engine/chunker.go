package ingestion_engine

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/docchat/internal/core"
)

// ValidateChunking rejects window settings whose stride would not advance.
func ValidateChunking(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrInvalidConfiguration, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", core.ErrInvalidConfiguration, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", core.ErrInvalidConfiguration, overlap, chunkSize)
	}
	return nil
}

// ChunkText splits text into fixed windows of chunkSize characters that
// start every chunkSize-overlap characters. Each window is trimmed and
// dropped if blank. Windows count runes, not tokens or sentences.
func ChunkText(text string, chunkSize, overlap int) ([]string, error) {
	if err := ValidateChunking(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	stride := chunkSize - overlap

	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := min(start+chunkSize, len(runes))
		window := strings.TrimSpace(string(runes[start:end]))
		if window == "" {
			continue
		}
		chunks = append(chunks, window)
	}
	return chunks, nil
}
