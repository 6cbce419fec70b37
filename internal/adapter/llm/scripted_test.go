package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

func TestScriptedGeneratorCyclesReplies(t *testing.T) {
	g := NewScriptedGenerator([]string{"héllo wörld", "second"}, ScriptedOptions{ChunkRunes: 3})
	req := domain.NewGenerationRequest([]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, domain.GenerateOptions{})

	var replies []string
	for range 3 {
		s, err := g.Generate(context.Background(), req)
		require.NoError(t, err)
		frags := drain(t, s)
		replies = append(replies, strings.Join(frags, ""))
		if len(replies) == 1 {
			assert.Equal(t, []string{"hél", "lo ", "wör", "ld"}, frags)
		}
	}
	assert.Equal(t, []string{"héllo wörld", "second", "héllo wörld"}, replies)
	assert.Len(t, g.Requests(), 3)
}

func TestScriptedStreamRespectsCancellation(t *testing.T) {
	g := NewScriptedGenerator([]string{"slow reply"}, ScriptedOptions{Delay: time.Second})
	s, err := g.Generate(context.Background(), domain.GenerationRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(config.LLMConfig{Provider: ProviderScripted, Script: []string{"x"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "scripted", g.Name())

	g, err = NewGenerator(config.LLMConfig{Provider: ProviderOpenAICompat, Breaker: config.BreakerConfig{Enabled: true}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BreakerGenerator{}, g)
	assert.Equal(t, "openai_compat", g.Name())

	_, err = NewGenerator(config.LLMConfig{Provider: "bedrock"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
