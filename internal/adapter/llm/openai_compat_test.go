package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

func sseServer(t *testing.T, lines []string, onRequest func(chatRequest, *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if onRequest != nil {
			onRequest(req, r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprint(w, l)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func contentLine(s string) string {
	b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]string{"content": s}}}})
	return "data: " + string(b) + "\n\n"
}

func drain(t *testing.T, s domain.TokenStream) []string {
	t.Helper()
	var out []string
	for {
		frag, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, frag)
	}
}

func newTestGenerator(baseURL string) *OpenAICompatGenerator {
	return NewOpenAICompatGenerator(config.LLMConfig{BaseURL: baseURL + "/v1", Model: "qwen2.5", APIKey: "secret"}, nil)
}

func TestOpenAICompatStreamsFragments(t *testing.T) {
	var got chatRequest
	var auth string
	srv := sseServer(t, []string{
		contentLine("Hel"),
		": keep-alive\n",
		contentLine("lo"),
		"data: not-json\n\n",
		"event: ping\n",
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}` + "\n\n",
		contentLine("ignored after finish"),
	}, func(req chatRequest, r *http.Request) {
		got = req
		auth = r.Header.Get("Authorization")
	})

	g := newTestGenerator(srv.URL)
	req := domain.NewGenerationRequest([]domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Name: domain.ToolResultsName, Content: "Tool results:"},
	}, domain.GenerateOptions{Temperature: 0.2, MaxTokens: 128})

	stream, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"Hel", "lo"}, drain(t, stream))

	assert.Equal(t, "qwen2.5", got.Model)
	assert.True(t, got.Stream)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	assert.Equal(t, 128, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.ToolResultsName, got.Messages[1].Name)
	assert.Equal(t, "Bearer secret", auth)
}

func TestOpenAICompatDoneSentinel(t *testing.T) {
	srv := sseServer(t, []string{contentLine("a"), "data: [DONE]\n\n", contentLine("b")}, nil)
	stream, err := newTestGenerator(srv.URL).Generate(context.Background(), domain.NewGenerationRequest(nil, domain.GenerateOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, drain(t, stream))
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestOpenAICompatErrorPayload(t *testing.T) {
	srv := sseServer(t, []string{contentLine("a"), `data: {"error":{"message":"model not loaded"}}` + "\n\n"}, nil)
	stream, err := newTestGenerator(srv.URL).Generate(context.Background(), domain.NewGenerationRequest(nil, domain.GenerateOptions{}))
	require.NoError(t, err)
	defer stream.Close()

	frag, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", frag)

	_, err = stream.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOpenAICompatHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusGatewayTimeout, domain.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestGenerator(srv.URL).Generate(context.Background(), domain.NewGenerationRequest(nil, domain.GenerateOptions{}))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAICompatCancelUnblocksNext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, contentLine("first"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := newTestGenerator(srv.URL).Generate(ctx, domain.NewGenerationRequest(nil, domain.GenerateOptions{}))
	require.NoError(t, err)
	defer stream.Close()

	frag, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", frag)

	time.AfterFunc(20*time.Millisecond, cancel)
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAICompatHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	assert.True(t, newTestGenerator(srv.URL).Healthy(context.Background()))
	assert.False(t, newTestGenerator(srv.URL+"/missing").Healthy(context.Background()))
}

func TestOpenAICompatOmitsZeroTemperature(t *testing.T) {
	body, err := json.Marshal(toChatRequest("m", domain.NewGenerationRequest(nil, domain.GenerateOptions{})))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "temperature")
	assert.NotContains(t, string(body), "max_tokens")
}
