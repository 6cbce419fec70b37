package llm

import (
	"fmt"
	"log/slog"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

// Provider names accepted in llm.provider.
const (
	ProviderOpenAICompat = "openai_compat"
	ProviderScripted     = "scripted"
)

// NewGenerator builds the configured backend, wrapped in a circuit breaker
// when llm.breaker.enabled is set.
func NewGenerator(cfg config.LLMConfig, l *slog.Logger) (domain.Generator, error) {
	var gen domain.Generator
	switch cfg.Provider {
	case ProviderOpenAICompat, "":
		gen = NewOpenAICompatGenerator(cfg, l)
	case ProviderScripted:
		gen = NewScriptedGenerator(cfg.Script, ScriptedOptions{})
	default:
		return nil, domain.NewDomainError("llm.NewGenerator", domain.ErrInvalidInput,
			fmt.Sprintf("unknown provider %q", cfg.Provider))
	}

	if cfg.Breaker.Enabled {
		gen = NewBreakerGenerator(gen, cfg.Breaker, l)
	}
	return gen, nil
}
