package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

type flakyGenerator struct {
	calls int
	err   error
}

func (g *flakyGenerator) Name() string { return "flaky" }

func (g *flakyGenerator) Generate(context.Context, domain.GenerationRequest) (domain.TokenStream, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return NewScriptedGenerator([]string{"ok"}, ScriptedOptions{}).Generate(context.Background(), domain.GenerationRequest{})
}

func TestBreakerPassesThrough(t *testing.T) {
	b := NewBreakerGenerator(&flakyGenerator{}, config.BreakerConfig{}, nil)
	stream, err := b.Generate(context.Background(), domain.GenerationRequest{})
	require.NoError(t, err)
	frag, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", frag)
	assert.Equal(t, "flaky", b.Name())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &flakyGenerator{err: errors.New("connection refused")}
	b := NewBreakerGenerator(inner, config.BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, nil)

	for range 2 {
		_, err := b.Generate(context.Background(), domain.GenerationRequest{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Generate(context.Background(), domain.GenerationRequest{})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	inner := &flakyGenerator{err: context.Canceled}
	b := NewBreakerGenerator(inner, config.BreakerConfig{MaxFailures: 1}, nil)

	for range 3 {
		_, err := b.Generate(context.Background(), domain.GenerationRequest{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, inner.calls)
}
