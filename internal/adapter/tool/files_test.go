package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
)

func TestLocalFileCreator(t *testing.T) {
	c, err := NewLocalFileCreator(t.TempDir(), 16, nil)
	require.NoError(t, err)

	art, err := c.Create(context.Background(), "data.json", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, "data.json", art.Name)
	assert.Equal(t, int64(7), art.Size)
	assert.True(t, strings.HasPrefix(art.Path, c.Root()))
	assert.Equal(t, "application/json", art.MimeType)
}

func TestLocalFileCreatorRejects(t *testing.T) {
	c, err := NewLocalFileCreator(t.TempDir(), 16, nil)
	require.NoError(t, err)

	for _, name := range []string{"", "../escape", "dir/file.txt", `a\b`, ".hidden"} {
		_, err := c.Create(context.Background(), name, "x")
		assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
	}

	_, err = c.Create(context.Background(), "big.txt", strings.Repeat("x", 17))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Create(ctx, "late.txt", "x")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRateLimiterRefills(t *testing.T) {
	r := NewRateLimiter(60, 1)
	now := r.now()
	r.now = func() time.Time { return now }

	assert.True(t, r.Allow(domain.ToolCalculate))
	assert.False(t, r.Allow(domain.ToolCalculate))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, r.Allow(domain.ToolCalculate))

	r.Reset()
	assert.True(t, r.Allow(domain.ToolCalculate))
}

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(0, 0)
	for range 100 {
		require.True(t, r.Allow(domain.ToolCreateFile))
	}
}
