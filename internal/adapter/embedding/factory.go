package embedding

import (
	"fmt"
	"net/http"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

// Provider names accepted in skills.similarity.provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// NewProvider builds the configured embedding provider, wrapped in an LRU
// cache of cacheSize vectors when cacheSize > 0.
func NewProvider(cfg config.SimilarityConfig, cacheSize int) (domain.EmbeddingProvider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	var p domain.EmbeddingProvider
	switch cfg.Provider {
	case "", ProviderOllama:
		opts := []OllamaOption{WithOllamaClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOllamaBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithOllamaModel(cfg.Model))
		}
		p = NewOllamaProvider(opts...)
	case ProviderOpenAI:
		opts := []OpenAIOption{WithOpenAIClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithOpenAIModel(cfg.Model))
		}
		p = NewOpenAIProvider(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
	return NewCachedEmbedder(p, cacheSize), nil
}
