package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolName identifies one of the fixed set of tools the model may call.
type ToolName string

const (
	ToolCalculate         ToolName = "calculate"
	ToolSearchDocuments   ToolName = "search_documents"
	ToolExecutePython     ToolName = "execute_python"
	ToolExecuteJavaScript ToolName = "execute_javascript"
	ToolAnalyzeImage      ToolName = "analyze_image"
	ToolCreateFile        ToolName = "create_file"
)

// AllTools lists the closed tool set in catalog order.
var AllTools = []ToolName{
	ToolCalculate,
	ToolSearchDocuments,
	ToolExecutePython,
	ToolExecuteJavaScript,
	ToolAnalyzeImage,
	ToolCreateFile,
}

// IsCodeTool reports whether the tool runs user code in a sandbox.
func (n ToolName) IsCodeTool() bool {
	return n == ToolExecutePython || n == ToolExecuteJavaScript
}

// ToolSchema describes a tool for the prompt catalog and parameter validation.
type ToolSchema struct {
	Name        ToolName        `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a structured tool invocation extracted from generated text.
type ToolCall struct {
	Tool       ToolName       `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// StringParam returns a string parameter, or "" when absent or not a string.
func (c ToolCall) StringParam(key string) string {
	if v, ok := c.Parameters[key].(string); ok {
		return v
	}
	return ""
}

// ToolResult is the outcome of one tool call. It is never mutated after creation.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	// Artifact is set when the call produced a file.
	Artifact *Artifact `json:"artifact,omitempty"`
}

// ToolRun pairs a call with its result and timing, for reporting.
type ToolRun struct {
	Call     ToolCall      `json:"call"`
	Result   ToolResult    `json:"result"`
	Duration time.Duration `json:"duration"`
}

// ToolExecutor runs tool calls against host capabilities.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall, tc ToolContext) (ToolResult, error)
	Schemas() []ToolSchema
}

// DocumentHit is one search_documents match.
type DocumentHit struct {
	Source  string  `json:"source"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Artifact describes a file produced by create_file.
type Artifact struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// CodeRunner executes source code in a sandbox.
type CodeRunner interface {
	Run(ctx context.Context, language, code string) (string, error)
}

// DocumentSearcher searches user documents.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]DocumentHit, error)
}

// ImageAnalyzer describes or answers questions about an image.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, image Attachment, prompt string) (string, error)
}

// FileCreator persists generated files.
type FileCreator interface {
	Create(ctx context.Context, name, content string) (Artifact, error)
}

// ToolContext carries the host capabilities available to a turn.
// Every field is optional; a nil capability yields a failed ToolResult.
type ToolContext struct {
	Code        CodeRunner
	Documents   DocumentSearcher
	Images      ImageAnalyzer
	Files       FileCreator
	Attachments AttachmentStore
}
