package domain

import "context"

// AgentProfile is a static specialist definition used by the task router.
type AgentProfile struct {
	ID              string   `json:"id"               yaml:"id"`
	Name            string   `json:"name"             yaml:"name"`
	Description     string   `json:"description"      yaml:"description"`
	Capabilities    []string `json:"capabilities"     yaml:"capabilities"`
	Pattern         string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	SystemPrompt    string   `json:"system_prompt"    yaml:"system_prompt"`
	Priority        float64  `json:"priority"         yaml:"priority"`
	PreferredSkills []string `json:"preferred_skills,omitempty" yaml:"preferred_skills,omitempty"`
}

// GeneralAgentID is the catch-all profile used as fallback.
const GeneralAgentID = "general"

// AgentScore holds the learned outcome counters of one profile.
type AgentScore struct {
	Successes    int     `json:"successes"`
	Total        int     `json:"total"`
	DynamicBoost float64 `json:"dynamic_boost"`
}

// SuccessRate returns successes/total, or 0.5 when nothing was recorded.
func (s AgentScore) SuccessRate() float64 {
	if s.Total == 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(s.Total)
}

// Classification is the task router's verdict for one query.
type Classification struct {
	Primary    AgentProfile `json:"primary"`
	Confidence float64      `json:"confidence"`
	Fallback   AgentProfile `json:"fallback"`
	Skills     []SkillMatch `json:"skills,omitempty"`
	Explicit   bool         `json:"explicit,omitempty"`
	Query      string       `json:"query"`
}

// Classifier picks a profile for a query.
type Classifier interface {
	Classify(ctx context.Context, query string, recent []string) (Classification, error)
	RecordOutcome(agentID string, success bool)
	// AmendOutcome flips an outcome recorded earlier to success.
	AmendOutcome(agentID string, success bool)
}

// Status is a phase label reported to the caller's status callback.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusThinking    Status = "thinking"
	StatusAnalyzing   Status = "analyzing"
	StatusPlanning    Status = "planning"
	StatusCoding      Status = "coding"
	StatusCalculating Status = "calculating"
	StatusGenerating  Status = "generating"
)

// TurnStatus is the terminal state of a turn.
type TurnStatus string

const (
	TurnCompleted     TurnStatus = "completed"
	TurnMaxIterations TurnStatus = "max_iterations"
	TurnFailed        TurnStatus = "failed"
	TurnCancelled     TurnStatus = "cancelled"
)
