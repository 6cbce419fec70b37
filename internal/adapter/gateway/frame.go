package gateway

import "encoding/json"

// FrameType tags a WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
	// Sent once per connection with the retained event history.
	FrameTypeSnapshot FrameType = "snapshot"
)

// Frame is the one message shape on the wire. Responses echo the request
// ID; Method is set on requests only.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"` // domain error code
}
