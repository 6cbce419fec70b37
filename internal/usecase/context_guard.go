package usecase

import (
	"log/slog"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
)

// DefaultContextTokens is the prompt budget when none is configured.
const DefaultContextTokens = 6000

// ContextGuard keeps a prompt within a token budget by dropping the oldest
// history groups. The newest group is always kept.
type ContextGuard struct {
	maxTokens    int
	tokenCounter domain.TokenCounter
	logger       *slog.Logger
}

// NewContextGuard creates a guard for maxTokens using counter.
func NewContextGuard(maxTokens int, counter domain.TokenCounter, l *slog.Logger) *ContextGuard {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}
	return &ContextGuard{
		maxTokens:    maxTokens,
		tokenCounter: counter,
		logger:       logger.Component(l, "context_guard"),
	}
}

// MaxTokens returns the configured budget.
func (g *ContextGuard) MaxTokens() int { return g.maxTokens }

// Count returns the token estimate of msgs, including a small per-message
// overhead for role framing.
func (g *ContextGuard) Count(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += g.tokenCounter.Count(m.Content) + 4
	}
	return total
}

// Fit returns the newest suffix of history that fits beside system.
func (g *ContextGuard) Fit(system domain.Message, history []domain.Message) []domain.Message {
	budget := g.maxTokens - g.Count([]domain.Message{system})
	groups := groupMessages(history)

	var kept [][]domain.Message
	used := 0
	for i := len(groups) - 1; i >= 0; i-- {
		cost := g.Count(groups[i])
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, groups[i])
		used += cost
	}

	out := make([]domain.Message, 0, len(history))
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i]...)
	}
	if dropped := len(history) - len(out); dropped > 0 {
		g.logger.Debug("history trimmed to token budget",
			"dropped", dropped,
			"tokens", used,
			"budget", budget,
		)
	}
	return out
}
