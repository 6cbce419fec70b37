package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateRouter(cfg, ve)
	validateSkills(cfg, ve)
	validateEvents(cfg, ve)
	validateTools(cfg, ve)
	validateStore(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	a := cfg.Agent
	if a.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if a.Persona == "" {
		ve.Add("agent.persona must not be empty")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		ve.Add("agent.temperature must be in [0, 2], got %v", a.Temperature)
	}
	if a.MaxTokens <= 0 {
		ve.Add("agent.max_tokens must be > 0")
	}
	if a.MaxHistoryMessages < 0 || a.ContextTokens < 0 {
		ve.Add("agent.max_history_messages and agent.context_tokens must be >= 0")
	}
	for i, m := range a.ReasoningMarkers {
		if m.Open == "" || m.Close == "" {
			ve.Add("agent.reasoning_markers[%d]: open and close are required", i)
		}
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	switch cfg.LLM.Provider {
	case "openai_compat":
		if cfg.LLM.BaseURL == "" {
			ve.Add("llm.base_url is required for provider openai_compat")
		}
		if cfg.LLM.Model == "" {
			ve.Add("llm.model is required for provider openai_compat")
		}
	case "scripted":
	default:
		ve.Add("llm.provider %q is invalid (want openai_compat or scripted)", cfg.LLM.Provider)
	}
	if cfg.LLM.Breaker.Enabled && cfg.LLM.Breaker.MaxFailures == 0 {
		ve.Add("llm.breaker.max_failures must be > 0 when the breaker is enabled")
	}
}

func validateRouter(cfg *Config, ve *ValidationError) {
	if cfg.Router.MaxSkills < 0 {
		ve.Add("router.max_skills must be >= 0")
	}
	seen := make(map[string]bool, len(cfg.Router.Profiles))
	for i, p := range cfg.Router.Profiles {
		if p.ID == "" {
			ve.Add("router.profiles[%d].id is required", i)
			continue
		}
		if seen[p.ID] {
			ve.Add("router.profiles[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				ve.Add("router.profiles[%d].pattern: %v", i, err)
			}
		}
	}
}

func validateSkills(cfg *Config, ve *ValidationError) {
	s := cfg.Skills
	if !s.Enabled {
		return
	}
	if s.Dir == "" {
		ve.Add("skills.dir is required when skills are enabled")
	}
	if s.MaxPerQuery <= 0 {
		ve.Add("skills.max_per_query must be > 0")
	}
	if s.CacheSize <= 0 {
		ve.Add("skills.cache_size must be > 0")
	}
	if s.PreferenceConfidence < 0 || s.PreferenceConfidence > 1 {
		ve.Add("skills.preference_confidence must be in [0, 1]")
	}
	if s.Similarity.Enabled && (s.Similarity.BaseURL == "" || s.Similarity.Model == "") {
		ve.Add("skills.similarity.base_url and model are required when similarity is enabled")
	}
	switch s.Similarity.Provider {
	case "", "ollama", "openai":
	default:
		ve.Add("skills.similarity.provider %q is invalid (want ollama or openai)", s.Similarity.Provider)
	}
}

func validateEvents(cfg *Config, ve *ValidationError) {
	if cfg.Events.BatchSize <= 0 {
		ve.Add("events.batch_size must be > 0")
	}
	if cfg.Events.SnapshotSize <= 0 {
		ve.Add("events.snapshot_size must be > 0")
	}
	if cfg.Events.FlushInterval <= 0 {
		ve.Add("events.flush_interval must be > 0")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.SandboxDir == "" {
		ve.Add("tools.sandbox_dir must not be empty")
	}
	if cfg.Tools.RatePerMin < 0 || cfg.Tools.Burst < 0 {
		ve.Add("tools.rate_per_minute and tools.burst must be >= 0")
	}
	if cfg.Tools.CalcTimeout <= 0 {
		ve.Add("tools.calc_timeout must be > 0")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Enabled && cfg.Store.Path == "" {
		ve.Add("store.path is required when the store is enabled")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.SessionTTL < 0 {
		ve.Add("gateway.session_ttl must be >= 0")
	}
}
