package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/tracer"
)

// Compile-time interface assertion.
var _ domain.ToolExecutor = (*Executor)(nil)

const (
	defaultSearchLimit  = 5
	defaultImagePrompt  = "Describe this image."
	maxToolOutputLength = 8000
)

// Options configures an Executor.
type Options struct {
	Schemas    []domain.ToolSchema // nil = DefaultSchemas()
	Calculator *Calculator         // nil = NewCalculator(0)
	Files      domain.FileCreator  // used when the turn supplies none
	Limiter    *RateLimiter        // nil = unlimited
	Logger     *slog.Logger
}

// Executor dispatches the closed tool set to host capabilities. Parameter
// errors and missing capabilities become failed results; only unknown tools
// and rate limiting are returned as errors.
type Executor struct {
	schemas  []domain.ToolSchema
	compiled map[domain.ToolName]*jsonschema.Schema
	calc     *Calculator
	files    domain.FileCreator
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewExecutor compiles the parameter schemas and returns an executor.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Schemas == nil {
		opts.Schemas = DefaultSchemas()
	}
	if opts.Calculator == nil {
		opts.Calculator = NewCalculator(0)
	}
	e := &Executor{
		schemas:  opts.Schemas,
		compiled: make(map[domain.ToolName]*jsonschema.Schema, len(opts.Schemas)),
		calc:     opts.Calculator,
		files:    opts.Files,
		limiter:  opts.Limiter,
		logger:   logger.Component(opts.Logger, "tools"),
	}
	for _, s := range opts.Schemas {
		compiled, err := compileSchema(s)
		if err != nil {
			return nil, err
		}
		e.compiled[s.Name] = compiled
	}
	return e, nil
}

// Schemas implements domain.ToolExecutor.
func (e *Executor) Schemas() []domain.ToolSchema {
	return append([]domain.ToolSchema(nil), e.schemas...)
}

// Execute implements domain.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, call domain.ToolCall, tc domain.ToolContext) (domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+string(call.Tool),
		trace.WithAttributes(
			tracer.StringAttr("tool.name", string(call.Tool)),
			tracer.StringAttr("turn.id", domain.TurnIDFromContext(ctx)),
		),
	)
	defer span.End()

	schema, known := e.compiled[call.Tool]
	if !known {
		err := domain.NewDomainError("Executor.Execute", domain.ErrUnknownTool, string(call.Tool))
		tracer.RecordError(span, err)
		return domain.ToolResult{}, err
	}
	if e.limiter != nil && !e.limiter.Allow(call.Tool) {
		err := domain.NewDomainError("Executor.Execute", domain.ErrRateLimit, string(call.Tool))
		tracer.RecordError(span, err)
		return domain.ToolResult{}, err
	}
	if err := validateParams(schema, call.Parameters); err != nil {
		tracer.RecordError(span, err)
		return failed("invalid parameters: %v", err), nil
	}

	res, err := e.dispatch(ctx, call, tc)
	if err != nil {
		tracer.RecordError(span, err)
		e.logger.Warn("tool failed", "tool", call.Tool, "turn_id", domain.TurnIDFromContext(ctx), "error", err)
		return failed("%v", err), nil
	}
	res.Output = truncate(res.Output, maxToolOutputLength)
	tracer.SetOK(span)
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, call domain.ToolCall, tc domain.ToolContext) (domain.ToolResult, error) {
	switch call.Tool {
	case domain.ToolCalculate:
		out, err := e.calc.Evaluate(ctx, call.StringParam("expression"))
		if err != nil {
			return domain.ToolResult{}, err
		}
		return domain.ToolResult{Success: true, Output: out}, nil

	case domain.ToolSearchDocuments:
		if tc.Documents == nil {
			return unavailable(call.Tool), nil
		}
		limit := defaultSearchLimit
		if n, ok := call.Parameters["limit"].(float64); ok && n >= 1 {
			limit = int(n)
		}
		hits, err := tc.Documents.Search(ctx, call.StringParam("query"), limit)
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("search documents: %w", err)
		}
		return domain.ToolResult{Success: true, Output: formatHits(hits)}, nil

	case domain.ToolExecutePython, domain.ToolExecuteJavaScript:
		if tc.Code == nil {
			return unavailable(call.Tool), nil
		}
		lang := "python"
		if call.Tool == domain.ToolExecuteJavaScript {
			lang = "javascript"
		}
		out, err := tc.Code.Run(ctx, lang, call.StringParam("code"))
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("run %s: %w", lang, err)
		}
		if strings.TrimSpace(out) == "" {
			out = "(no output)"
		}
		return domain.ToolResult{Success: true, Output: out}, nil

	case domain.ToolAnalyzeImage:
		return e.analyzeImage(ctx, call, tc)

	case domain.ToolCreateFile:
		files := tc.Files
		if files == nil {
			files = e.files
		}
		if files == nil {
			return unavailable(call.Tool), nil
		}
		art, err := files.Create(ctx, call.StringParam("name"), call.StringParam("content"))
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("create file: %w", err)
		}
		return domain.ToolResult{
			Success:  true,
			Output:   fmt.Sprintf("created %s (%d bytes)", art.Name, art.Size),
			Artifact: &art,
		}, nil
	}
	return unavailable(call.Tool), nil
}

func (e *Executor) analyzeImage(ctx context.Context, call domain.ToolCall, tc domain.ToolContext) (domain.ToolResult, error) {
	if tc.Images == nil || tc.Attachments == nil {
		return unavailable(call.Tool), nil
	}
	var (
		img domain.Attachment
		ok  bool
	)
	if id := call.StringParam("image_id"); id != "" {
		img, ok = tc.Attachments.Get(id)
	} else {
		img, ok = tc.Attachments.Current()
	}
	if !ok {
		return failed("no image is attached to this conversation"), nil
	}

	prompt := call.StringParam("prompt")
	if prompt == "" {
		prompt = defaultImagePrompt
	}
	out, err := tc.Images.Analyze(ctx, img, prompt)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("analyze image: %w", err)
	}
	return domain.ToolResult{Success: true, Output: out}, nil
}

func formatHits(hits []domain.DocumentHit) string {
	if len(hits) == 0 {
		return "no matching documents"
	}
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%d] %s (score %.2f)\n%s", i+1, h.Source, h.Score, strings.TrimSpace(h.Snippet))
	}
	return sb.String()
}

func unavailable(name domain.ToolName) domain.ToolResult {
	return failed("%v: %s is not available in this session", domain.ErrCapabilityUnavailable, name)
}

func failed(format string, args ...any) domain.ToolResult {
	return domain.ToolResult{Success: false, Output: fmt.Sprintf(format, args...)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "\n... (truncated)"
}
