package multiagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
)

func TestRegistryKeepsOrder(t *testing.T) {
	r, err := NewRegistry(DefaultProfiles(), nil)
	require.NoError(t, err)

	ids := make([]string, 0, r.Len())
	for _, p := range r.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"general", "code-expert", "data-analyst", "researcher", "writer", "math-expert"}, ids)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]domain.AgentProfile{{ID: "a"}, {ID: "a"}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistryRejectsBadPattern(t *testing.T) {
	_, err := NewRegistry([]domain.AgentProfile{{ID: "a", Pattern: "("}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	_, err := NewRegistry([]domain.AgentProfile{{ID: "  "}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistryGet(t *testing.T) {
	r, err := NewRegistry(DefaultProfiles(), nil)
	require.NoError(t, err)

	p, err := r.Get("writer")
	require.NoError(t, err)
	assert.Equal(t, "Writer", p.Name)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryNames(t *testing.T) {
	r, err := NewRegistry(DefaultProfiles(), nil)
	require.NoError(t, err)

	names := r.Names()
	assert.Equal(t, "data-analyst", names["data-analyst"])
	assert.Equal(t, "data-analyst", names["dataanalyst"])
	assert.Equal(t, "general", names["generalassistant"])
}
