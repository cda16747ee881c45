package config

import (
	"fmt"
	"strings"
)

// MaxIndexedDim is the largest vector pgvector can put in an HNSW index.
const MaxIndexedDim = 2000

type providerDefault struct {
	embedModel string
	chatModel  string
}

var providerDefaults = map[string]providerDefault{
	"openai": {embedModel: "text-embedding-3-small", chatModel: "gpt-4o-mini"},
	"gemini": {embedModel: "text-embedding-004", chatModel: "gemini-1.5-flash"},
}

// embedModel describes a known embedding model. Models with a fixed size
// always return dim entries; the others accept any size up to dim.
type embedModel struct {
	provider string
	dim      int
	fixed    bool
}

var embedModels = map[string]embedModel{
	"text-embedding-3-small": {provider: "openai", dim: 1536},
	"text-embedding-3-large": {provider: "openai", dim: 3072},
	"text-embedding-ada-002": {provider: "openai", dim: 1536, fixed: true},
	"text-embedding-004":     {provider: "gemini", dim: 768, fixed: true},
	"embedding-001":          {provider: "gemini", dim: 768, fixed: true},
	"gemini-embedding-001":   {provider: "gemini", dim: 3072, fixed: true},
}

// applyProviderDefaults fills model fields left empty with the choices for
// AIProvider. An unset EmbedDim takes the native size of the model.
func (c *Config) applyProviderDefaults() {
	d, ok := providerDefaults[c.AIProvider]
	if !ok {
		return
	}
	if c.EmbedModel == "" {
		c.EmbedModel = d.embedModel
	}
	if c.ChatModel == "" {
		c.ChatModel = d.chatModel
	}
	if c.EmbedDim == 0 {
		if m, ok := embedModels[strings.TrimPrefix(c.EmbedModel, "models/")]; ok {
			c.EmbedDim = m.dim
		}
	}
}

// modelProblems reports provider, model and dimension combinations that
// cannot produce vectors the store accepts. Unknown models are trusted.
func (c *Config) modelProblems() []string {
	var out []string

	if m, ok := embedModels[strings.TrimPrefix(c.EmbedModel, "models/")]; ok {
		switch {
		case m.provider != c.AIProvider:
			out = append(out, fmt.Sprintf("EMBED_MODEL %q belongs to %s, not AI_PROVIDER %q", c.EmbedModel, m.provider, c.AIProvider))
		case m.fixed && c.EmbedDim != m.dim:
			out = append(out, fmt.Sprintf("EMBED_MODEL %q returns %d dimensions, EMBED_DIM is %d", c.EmbedModel, m.dim, c.EmbedDim))
		case c.EmbedDim > m.dim:
			out = append(out, fmt.Sprintf("EMBED_MODEL %q supports at most %d dimensions, EMBED_DIM is %d", c.EmbedModel, m.dim, c.EmbedDim))
		}
	}

	switch {
	case c.AIProvider == "gemini" && strings.HasPrefix(c.ChatModel, "gpt-"):
		out = append(out, fmt.Sprintf("CHAT_MODEL %q is not a gemini model", c.ChatModel))
	case c.AIProvider == "openai" && strings.HasPrefix(c.ChatModel, "gemini"):
		out = append(out, fmt.Sprintf("CHAT_MODEL %q is not an openai model", c.ChatModel))
	}

	if c.DbBackend == "postgres" && c.EmbedDim > MaxIndexedDim {
		out = append(out, fmt.Sprintf("EMBED_DIM %d exceeds the %d-dimension HNSW index limit", c.EmbedDim, MaxIndexedDim))
	}
	return out
}
