package domain

import (
	"slices"
	"time"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolResultsName marks the synthetic user message that carries tool output
// back into the conversation.
const ToolResultsName = "tool_results"

// Message represents a single message in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateOptions are the sampling options forwarded to the generation backend.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// GenerationRequest is the immutable input of one generation round.
type GenerationRequest struct {
	messages []Message
	Options  GenerateOptions
}

// NewGenerationRequest copies msgs so later mutation by the caller cannot
// affect a request already submitted.
func NewGenerationRequest(msgs []Message, opts GenerateOptions) GenerationRequest {
	return GenerationRequest{messages: slices.Clone(msgs), Options: opts}
}

// Messages returns a copy of the request messages.
func (r GenerationRequest) Messages() []Message {
	return slices.Clone(r.messages)
}

// Len returns the number of messages in the request.
func (r GenerationRequest) Len() int { return len(r.messages) }

// LastUserContent returns the content of the newest user message, or "".
func LastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && msgs[i].Name != ToolResultsName {
			return msgs[i].Content
		}
	}
	return ""
}
