package domain

// PlanStartedPayload is emitted once per turn after classification.
type PlanStartedPayload struct {
	Title     string `json:"title"`
	Goal      string `json:"goal"`
	StepCount int    `json:"step_count"`
	Agent     string `json:"agent"`
}

// StepPayload covers the step lifecycle events. Each generation round and
// each tool call is one step.
type StepPayload struct {
	Title      string   `json:"title"`
	Iteration  int      `json:"iteration"`
	Message    string   `json:"message,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ToolStartedPayload is emitted before a tool call runs.
type ToolStartedPayload struct {
	Tool       ToolName       `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// ToolCompletedPayload is emitted after a tool call finished.
type ToolCompletedPayload struct {
	Tool       ToolName `json:"tool"`
	Success    bool     `json:"success"`
	Output     string   `json:"output"`
	DurationMs int64    `json:"duration_ms"`
}

// DeltaPayload carries a visible-text or reasoning fragment.
type DeltaPayload struct {
	Content   string `json:"content"`
	Iteration int    `json:"iteration"`
}

// ArtifactPayload is emitted when a tool created a file.
type ArtifactPayload struct {
	Artifact Artifact `json:"artifact"`
}

// StatusPayload is emitted on every status transition.
type StatusPayload struct {
	Status Status `json:"status"`
}

// PlanCompletedPayload closes a turn.
type PlanCompletedPayload struct {
	Status     TurnStatus `json:"status"`
	DurationMs int64      `json:"duration_ms"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Iterations int        `json:"iterations"`
	Warning    string     `json:"warning,omitempty"`
}

// AgentRoutedPayload records the router decision for a turn.
type AgentRoutedPayload struct {
	Agent      string   `json:"agent"`
	Fallback   string   `json:"fallback"`
	Confidence float64  `json:"confidence"`
	Skills     []string `json:"skills,omitempty"`
	Explicit   bool     `json:"explicit,omitempty"`
}
