package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

func TestOllamaEmbed(t *testing.T) {
	var got ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 0}, {0, 1}}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(WithOllamaBaseURL(srv.URL), WithOllamaModel("mini"))
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "mini", got.Model)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, "ollama", p.Name())
}

func TestOllamaEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"invalid json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}},
		{"count mismatch", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewOllamaProvider(WithOllamaBaseURL(srv.URL)).Embed(context.Background(), []string{"a", "b"})
			assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
		})
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	vecs, err := NewOllamaProvider(WithOllamaBaseURL(srv.URL)).Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)

	vecs, err = NewOpenAIProvider("", WithOpenAIBaseURL(srv.URL)).Embed(context.Background(), []string{})
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestOpenAIEmbedReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", WithOpenAIBaseURL(srv.URL))
	vecs, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vecs)
}

// countingEmbedder returns a one-dimensional vector holding the text length
// and records every batch it receives.
type countingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (e *countingEmbedder) Name() string { return "counting" }

func TestCachedEmbedderSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 8)

	_, err := c.Embed(context.Background(), []string{"aa"})
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"bbb", "aa", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, {2}, {1}}, vecs)
	assert.Equal(t, [][]string{{"aa"}, {"bbb", "c"}}, inner.batches)

	_, err = c.Embed(context.Background(), []string{"c", "bbb"})
	require.NoError(t, err)
	assert.Len(t, inner.batches, 2)
	assert.Equal(t, "counting", c.Name())
}

func TestCachedEmbedderEviction(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 2).(*CachedEmbedder)

	for _, s := range []string{"a", "b", "c"} {
		_, err := c.Embed(context.Background(), []string{s})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	_, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, inner.batches, 4)
}

func TestNewCachedEmbedderZeroSize(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Same(t, inner, NewCachedEmbedder(inner, 0))
}

// keywordEmbedder maps text onto three axes: charts, money and travel.
type keywordEmbedder struct{ calls int }

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := make([]float32, 3)
		for j, words := range [][]string{{"chart", "plot"}, {"budget", "money", "tax"}, {"flight", "trip"}} {
			for _, w := range words {
				if strings.Contains(t, w) {
					v[j]++
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Name() string { return "keyword" }

type staticRegistry struct{ metas []domain.SkillMetadata }

func (r staticRegistry) List(context.Context) ([]domain.SkillMetadata, error) { return r.metas, nil }

func (r staticRegistry) Load(_ context.Context, name string) (domain.Skill, error) {
	return domain.Skill{}, domain.ErrNotFound
}

func TestSkillIndexSearch(t *testing.T) {
	reg := staticRegistry{metas: []domain.SkillMetadata{
		{Name: "chart_reading", Description: "Read values off a chart", Capabilities: []string{"plots"}, Enabled: true},
		{Name: "budgeting", Description: "Plan a monthly budget", Enabled: true},
		{Name: "travel", Description: "Book a flight", Enabled: false},
	}}
	emb := &keywordEmbedder{}
	idx := NewSkillIndex(emb, reg, nil)

	hits, err := idx.Search(context.Background(), "what does this plot show", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chart_reading", hits[0].Name)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "budgeting", hits[1].Name)
	assert.Zero(t, hits[1].Score)
	assert.Equal(t, 2, idx.Len())

	hits, err = idx.Search(context.Background(), "tax money", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "budgeting", hits[0].Name)

	// One rebuild and two queries.
	assert.Equal(t, 3, emb.calls)

	hits, err = idx.Search(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosine([]float32{1}, []float32{1, 1}))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.SimilarityConfig{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = NewProvider(config.SimilarityConfig{Provider: ProviderOpenAI, APIKey: "k"}, 16)
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, p)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(config.SimilarityConfig{Provider: "gemini"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
