package llm

import "fmt"

// ProviderConfig selects and configures the enrichment LLM provider.
type ProviderConfig struct {
	Provider       string // "anthropic" or "ollama"
	AnthropicAPIKey string
	Model          string // enrichment model name; provider-specific default if empty
	OllamaBaseURL  string
}

// NewEnrichmentProvider builds the configured EnrichmentProvider.
func NewEnrichmentProvider(cfg ProviderConfig) (EnrichmentProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(OllamaConfig{BaseURL: cfg.OllamaBaseURL, Model: cfg.Model}), nil
	case "anthropic", "":
		return NewAnthropicProvider(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("llm: unsupported enrichment provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator builds the embedding generator. Only Ollama
// generates embeddings in this system (original_source's embedding
// service is always local, never via Anthropic).
func NewEmbeddingGenerator(baseURL, model string) EmbeddingGenerator {
	if model == "" {
		model = "nomic-embed-text"
	}
	return NewOllamaClient(OllamaConfig{BaseURL: baseURL, Model: model})
}
