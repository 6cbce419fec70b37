package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"max iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "agent.max_iterations must be > 0"},
		{"temperature", func(c *Config) { c.Agent.Temperature = 3 }, "agent.temperature"},
		{"marker", func(c *Config) { c.Agent.ReasoningMarkers = []MarkerConfig{{Open: "<x>"}} }, "reasoning_markers[0]"},
		{"provider", func(c *Config) { c.LLM.Provider = "bedrock" }, `llm.provider "bedrock" is invalid`},
		{"base url", func(c *Config) { c.LLM.BaseURL = "" }, "llm.base_url is required"},
		{"duplicate profile", func(c *Config) {
			c.Router.Profiles = []ProfileConfig{{ID: "a"}, {ID: "a"}}
		}, `duplicate id "a"`},
		{"bad pattern", func(c *Config) {
			c.Router.Profiles = []ProfileConfig{{ID: "a", Pattern: "("}}
		}, "router.profiles[0].pattern"},
		{"similarity", func(c *Config) {
			c.Skills.Similarity.Enabled = true
			c.Skills.Similarity.Model = ""
		}, "skills.similarity"},
		{"batch size", func(c *Config) { c.Events.BatchSize = 0 }, "events.batch_size"},
		{"store path", func(c *Config) {
			c.Store.Enabled = true
			c.Store.Path = ""
		}, "store.path is required"},
		{"gateway addr", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.Addr = "nohost"
		}, "not a valid host:port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateSkillsDisabledSkipsChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Skills.Enabled = false
	cfg.Skills.Dir = ""
	cfg.Skills.CacheSize = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.MaxIterations = 0
	cfg.Agent.Persona = ""
	cfg.Events.SnapshotSize = 0

	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}
