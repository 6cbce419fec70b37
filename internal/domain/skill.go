package domain

import (
	"context"
	"time"
)

// SkillMetadata is the structured header of a skill document.
type SkillMetadata struct {
	Name         string   `json:"name"         yaml:"name"`
	Description  string   `json:"description"  yaml:"description"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Enabled      bool     `json:"enabled"      yaml:"enabled"`
}

// Skill is a retrievable instruction snippet.
type Skill struct {
	Metadata     SkillMetadata `json:"metadata"`
	Instructions string        `json:"instructions"`
	Source       string        `json:"source,omitempty"`
}

// SkillUsage tracks how a skill has performed.
type SkillUsage struct {
	UseCount           int       `json:"use_count"`
	AverageSuccessRate float64   `json:"average_success_rate"`
	UserPreference     float64   `json:"user_preference"`
	LastUsed           time.Time `json:"last_used"`
}

// NewSkillUsage returns neutral usage stats for a skill never used before.
func NewSkillUsage() SkillUsage {
	return SkillUsage{AverageSuccessRate: 0.5, UserPreference: 0.5}
}

// SkillMatch is one ranked skill candidate for a query.
type SkillMatch struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	// Instructions is filled lazily when the match is injected into a prompt.
	Instructions string `json:"-"`
}

// SkillRegistry lists and loads skill documents.
type SkillRegistry interface {
	// List returns metadata for every known skill.
	List(ctx context.Context) ([]SkillMetadata, error)
	// Load returns the full skill by name.
	Load(ctx context.Context, name string) (Skill, error)
}

// SimilarityHit is one result of a similarity search.
type SimilarityHit struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// SimilaritySearcher is the optional embedding-based skill strategy.
type SimilaritySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SimilarityHit, error)
}

// EmbeddingProvider is the interface for text embedding backends.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// StatsStore persists learned routing and skill statistics.
type StatsStore interface {
	LoadAgentScores(ctx context.Context) (map[string]AgentScore, error)
	SaveAgentScore(ctx context.Context, agentID string, score AgentScore) error
	LoadSkillUsage(ctx context.Context) (map[string]SkillUsage, error)
	SaveSkillUsage(ctx context.Context, name string, usage SkillUsage) error
}
