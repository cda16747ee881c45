// Package assembler fits retrieved chunks and conversation history into token
// budgets. Both procedures are greedy: they stop at the first item that would
// overflow instead of looking for a smaller one further on.
package assembler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/tokens"
	"github.com/markdave123-py/docchat/internal/models"
)

// BlockSeparator joins context blocks.
const BlockSeparator = "\n\n---\n\n"

// FormatBlock labels a chunk with its relevance score.
func FormatBlock(c models.ScoredChunk) string {
	return fmt.Sprintf("[Relevance: %.2f]\n%s", c.Similarity, c.Content)
}

// BuildContextString formats chunks (most relevant first) and keeps them while
// the summed block cost stays within maxTokens.
func BuildContextString(counter tokens.Counter, chunks []models.ScoredChunk, maxTokens int) string {
	var (
		parts []string
		total int
	)
	for _, c := range chunks {
		block := FormatBlock(c)
		n := counter.Count(block)
		if total+n > maxTokens {
			break
		}
		parts = append(parts, block)
		total += n
	}
	return strings.Join(parts, BlockSeparator)
}

// BuildConversationHistory walks newestFirst until the budget is exhausted and
// returns the kept messages oldest first.
func BuildConversationHistory(counter tokens.Counter, newestFirst []models.Message, maxTokens int) []core.ChatTurn {
	var (
		turns []core.ChatTurn
		total int
	)
	for _, m := range newestFirst {
		n := counter.Count(m.Content)
		if total+n > maxTokens {
			break
		}
		turns = append(turns, core.ChatTurn{Role: m.Role, Content: m.Content})
		total += n
	}
	slices.Reverse(turns)
	return turns
}
