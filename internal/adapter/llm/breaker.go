package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
	"lumen-agent/internal/infra/logger"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// Compile-time interface assertion.
var _ domain.Generator = (*BreakerGenerator)(nil)

// BreakerGenerator wraps a generator with circuit breaker protection. Only
// opening a stream counts toward the breaker; mid-stream failures surface
// through Next and do not trip it.
type BreakerGenerator struct {
	inner   domain.Generator
	breaker *gobreaker.CircuitBreaker[domain.TokenStream]
	logger  *slog.Logger
}

// NewBreakerGenerator wraps inner. Zero config values use the defaults.
func NewBreakerGenerator(inner domain.Generator, cfg config.BreakerConfig, l *slog.Logger) *BreakerGenerator {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	log := logger.Component(l, "llm.breaker")
	cb := gobreaker.NewCircuitBreaker[domain.TokenStream](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A cancelled turn says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerGenerator{inner: inner, breaker: cb, logger: log}
}

// Generate implements domain.Generator.
func (b *BreakerGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.TokenStream, error) {
	stream, err := b.breaker.Execute(func() (domain.TokenStream, error) {
		return b.inner.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: backend %q: %w", domain.ErrCircuitOpen, b.inner.Name(), err)
		}
		return nil, err
	}
	return stream, nil
}

// Name implements domain.Generator.
func (b *BreakerGenerator) Name() string { return b.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (b *BreakerGenerator) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (b *BreakerGenerator) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
