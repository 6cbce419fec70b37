package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/tracer"
)

// Compile-time interface assertion.
var _ domain.Generator = (*OpenAICompatGenerator)(nil)

// defaultBaseURL is Ollama's OpenAI-compatible endpoint.
const defaultBaseURL = "http://localhost:11434/v1"

// OpenAICompatGenerator streams chat completions from any server speaking
// the OpenAI wire format (Ollama, llama.cpp server, LM Studio, vLLM).
type OpenAICompatGenerator struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAICompatGenerator creates a generator from the llm config section.
func NewOpenAICompatGenerator(cfg config.LLMConfig, l *slog.Logger) *OpenAICompatGenerator {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAICompatGenerator{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg.ConnectTimeout, cfg.StreamTimeout),
		logger:  logger.Component(l, "llm"),
	}
}

// Name implements domain.Generator.
func (g *OpenAICompatGenerator) Name() string { return "openai_compat" }

// Model returns the configured model name.
func (g *OpenAICompatGenerator) Model() string { return g.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func toChatRequest(model string, req domain.GenerationRequest) chatRequest {
	msgs := req.Messages()
	out := chatRequest{
		Model:     model,
		Messages:  make([]chatMessage, len(msgs)),
		Stream:    true,
		MaxTokens: req.Options.MaxTokens,
	}
	if req.Options.Temperature > 0 {
		out.Temperature = new(req.Options.Temperature)
	}
	for i, m := range msgs {
		out.Messages[i] = chatMessage{Role: m.Role, Content: m.Content, Name: m.Name}
	}
	return out
}

// Generate implements domain.Generator. Only the connection setup happens
// here; fragments are pulled through the returned stream.
func (g *OpenAICompatGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.TokenStream, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.backend", g.Name()),
			tracer.StringAttr("llm.model", g.model),
			tracer.IntAttr("llm.messages", req.Len()),
		),
	)
	defer span.End()

	body, err := json.Marshal(toChatRequest(g.model, req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if g.apiKey != "" {
		headers["Authorization"] = "Bearer " + g.apiKey
	}

	httpResp, err := doStreamRequest(ctx, g.client, g.baseURL+"/chat/completions", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	g.logger.Debug("generation stream opened", "model", g.model, "messages", req.Len())

	return newSSEStream(ctx, httpResp.Body, parseChunk), nil
}

// parseChunk decodes one streamed chat completion chunk. Unparseable lines
// are skipped; an error payload ends the stream.
func parseChunk(data []byte) (string, bool, error) {
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, nil
	}
	if chunk.Error != nil {
		return "", true, fmt.Errorf("backend error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	c := chunk.Choices[0]
	done := c.FinishReason != nil && *c.FinishReason != ""
	return c.Delta.Content, done, nil
}

// Healthy reports whether the backend answers its model listing.
func (g *OpenAICompatGenerator) Healthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return false
	}
	httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}
