package tool

import (
	"encoding/json"

	"lumen-agent/internal/domain"
)

// DefaultSchemas returns the catalog of the closed tool set, in prompt order.
func DefaultSchemas() []domain.ToolSchema {
	return []domain.ToolSchema{
		{
			Name:        domain.ToolCalculate,
			Description: "Evaluate an arithmetic expression exactly. Supports + - * / %, parentheses and decimals.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"expression": {"type": "string", "minLength": 1, "maxLength": 512, "description": "Arithmetic expression, e.g. (17 * 23) / 4"}
				},
				"required": ["expression"]
			}`),
		},
		{
			Name:        domain.ToolSearchDocuments,
			Description: "Search the user's uploaded documents and return the best matching passages.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "minLength": 1, "description": "What to look for"},
					"limit": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Maximum number of passages (default 5)"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        domain.ToolExecutePython,
			Description: "Run Python code in a sandbox and return its output.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"code": {"type": "string", "minLength": 1, "description": "Python source; print what you need"}
				},
				"required": ["code"]
			}`),
		},
		{
			Name:        domain.ToolExecuteJavaScript,
			Description: "Run JavaScript code in a sandbox and return its output.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"code": {"type": "string", "minLength": 1, "description": "JavaScript source; console.log what you need"}
				},
				"required": ["code"]
			}`),
		},
		{
			Name:        domain.ToolAnalyzeImage,
			Description: "Look at the image the user attached and answer a question about it.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"prompt": {"type": "string", "description": "Question about the image (default: describe it)"},
					"image_id": {"type": "string", "description": "Attachment id; the latest upload when omitted"}
				}
			}`),
		},
		{
			Name:        domain.ToolCreateFile,
			Description: "Create a file for the user with the given name and full content.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1, "maxLength": 128, "pattern": "^[^/\\\\]+$", "description": "File name without directories, e.g. report.md"},
					"content": {"type": "string", "description": "Complete file content"}
				},
				"required": ["name", "content"]
			}`),
		},
	}
}
