package multiagent

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/metrics"
	"lumen-agent/internal/infra/tracer"
	"lumen-agent/internal/usecase/skills"
)

// Scoring defaults.
const (
	DefaultKeywordPoints = 2.0
	DefaultPatternBonus  = 3.0
	DefaultMaxSkills     = 3

	priorityWeight  = 0.5
	confidenceScale = 10.0
	boostLimit      = 2.0
)

// SkillFinder supplies skills for a classified query.
type SkillFinder interface {
	FindRelevantSkills(ctx context.Context, q skills.Query) []domain.SkillMatch
}

// RouterOptions tunes scoring.
type RouterOptions struct {
	KeywordPoints float64
	PatternBonus  float64
	MaxSkills     int
}

// RouterDeps holds the router's collaborators. Registry is required.
type RouterDeps struct {
	Registry *Registry
	Skills   SkillFinder
	Store    domain.StatsStore
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Ranked is one profile with its score for a query.
type Ranked struct {
	Profile domain.AgentProfile `json:"profile"`
	Score   float64             `json:"score"`
}

// TaskRouter classifies queries to agent profiles and learns from outcomes.
// It owns the score map; nothing else mutates it.
type TaskRouter struct {
	registry *Registry
	prefix   *PrefixRouter
	skills   SkillFinder
	store    domain.StatsStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     RouterOptions

	mu     sync.RWMutex
	scores map[string]domain.AgentScore
}

// NewTaskRouter creates a router over the registry's profiles.
func NewTaskRouter(deps RouterDeps, opts RouterOptions) *TaskRouter {
	if opts.KeywordPoints <= 0 {
		opts.KeywordPoints = DefaultKeywordPoints
	}
	if opts.PatternBonus <= 0 {
		opts.PatternBonus = DefaultPatternBonus
	}
	if opts.MaxSkills <= 0 {
		opts.MaxSkills = DefaultMaxSkills
	}
	l := logger.Component(deps.Logger, "task_router")
	return &TaskRouter{
		registry: deps.Registry,
		prefix:   NewPrefixRouter(deps.Registry.Names(), deps.Logger),
		skills:   deps.Skills,
		store:    deps.Store,
		logger:   l,
		metrics:  deps.Metrics,
		opts:     opts,
		scores:   make(map[string]domain.AgentScore),
	}
}

// Classify picks the best profile for query and attaches relevant skills.
// recent lists skill names used earlier in the conversation.
func (r *TaskRouter) Classify(ctx context.Context, query string, recent []string) (domain.Classification, error) {
	ctx, span := tracer.StartSpan(ctx, "router.classify")
	defer span.End()

	if r.registry.Len() == 0 {
		err := fmt.Errorf("%w: no profiles registered", domain.ErrClassificationFailure)
		tracer.RecordError(span, err)
		return domain.Classification{}, err
	}

	var c domain.Classification
	mode := "scored"
	skillQuery := query

	if id, rest, ok := r.prefix.Match(query); ok {
		primary, err := r.registry.Get(id)
		if err != nil {
			tracer.RecordError(span, err)
			return domain.Classification{}, fmt.Errorf("%w: %v", domain.ErrClassificationFailure, err)
		}
		c = domain.Classification{Primary: primary, Confidence: 1, Explicit: true}
		c.Fallback = r.fallbackFor(primary.ID, r.Rank(rest))
		skillQuery = rest
		mode = "explicit"
	} else {
		ranked := r.Rank(query)
		top := ranked[0]
		c = domain.Classification{
			Primary:    top.Profile,
			Confidence: min(1, max(0, top.Score/confidenceScale)),
			Fallback:   r.fallbackFor(top.Profile.ID, ranked),
		}
	}
	c.Query = skillQuery

	if r.skills != nil {
		matches := r.skills.FindRelevantSkills(ctx, skills.Query{
			Text:      skillQuery,
			AgentID:   c.Primary.ID,
			Preferred: c.Primary.PreferredSkills,
			Recent:    recent,
		})
		if len(matches) > r.opts.MaxSkills {
			matches = matches[:r.opts.MaxSkills]
		}
		c.Skills = matches
	}

	r.metrics.Classified(c.Primary.ID, mode, len(c.Skills))
	span.SetAttributes(
		tracer.StringAttr("agent.id", c.Primary.ID),
		tracer.FloatAttr("agent.confidence", c.Confidence),
		tracer.IntAttr("skills.count", len(c.Skills)),
		tracer.BoolAttr("agent.explicit", c.Explicit),
	)
	tracer.SetOK(span)
	r.logger.Debug("query classified",
		"agent_id", c.Primary.ID,
		"fallback_id", c.Fallback.ID,
		"confidence", c.Confidence,
		"mode", mode,
		"skills", len(c.Skills),
	)
	return c, nil
}

// Rank scores every profile against query, best first. Ties keep
// registration order.
func (r *TaskRouter) Rank(query string) []Ranked {
	lower := strings.ToLower(query)
	entries := r.registry.snapshot()

	r.mu.RLock()
	out := make([]Ranked, len(entries))
	for i, e := range entries {
		out[i] = Ranked{Profile: e.profile, Score: r.score(e, lower)}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Ranked) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

// score must be called with r.mu held.
func (r *TaskRouter) score(e *profileEntry, lowerQuery string) float64 {
	var s float64
	for _, kw := range e.keywords {
		if strings.Contains(lowerQuery, kw) {
			s += r.opts.KeywordPoints
		}
	}
	if e.pattern != nil && e.pattern.MatchString(lowerQuery) {
		s += r.opts.PatternBonus
	}
	s += e.profile.Priority * priorityWeight
	s += r.scores[e.profile.ID].DynamicBoost
	return s
}

// fallbackFor returns the general profile, or the best ranked profile other
// than primary when general is the primary or missing.
func (r *TaskRouter) fallbackFor(primaryID string, ranked []Ranked) domain.AgentProfile {
	if primaryID != domain.GeneralAgentID {
		if p, err := r.registry.Get(domain.GeneralAgentID); err == nil {
			return p
		}
	}
	for _, rk := range ranked {
		if rk.Profile.ID != primaryID {
			return rk.Profile
		}
	}
	p, _ := r.registry.Get(primaryID)
	return p
}

// RecordOutcome counts one result for a profile and recomputes its boost.
// Unknown ids are ignored.
func (r *TaskRouter) RecordOutcome(agentID string, success bool) {
	if _, err := r.registry.Get(agentID); err != nil {
		r.logger.Debug("outcome for unknown profile ignored", "agent_id", agentID)
		return
	}

	r.mu.Lock()
	s := r.scores[agentID]
	s.Total++
	if success {
		s.Successes++
	}
	s.DynamicBoost = boostFor(s)
	r.scores[agentID] = s
	r.mu.Unlock()

	r.logger.Debug("outcome recorded", "agent_id", agentID, "success", success,
		"total", s.Total, "dynamic_boost", s.DynamicBoost)

	if r.store != nil {
		if err := r.store.SaveAgentScore(context.Background(), agentID, s); err != nil {
			r.logger.Warn("persist agent score failed", "agent_id", agentID, "error", err)
		}
	}
}

// AmendOutcome replaces one earlier result of the opposite verdict, so a
// user correction does not count the turn twice. Total is unchanged.
func (r *TaskRouter) AmendOutcome(agentID string, success bool) {
	r.mu.Lock()
	s, ok := r.scores[agentID]
	if !ok || s.Total == 0 {
		r.mu.Unlock()
		r.RecordOutcome(agentID, success)
		return
	}
	switch {
	case success && s.Successes < s.Total:
		s.Successes++
	case !success && s.Successes > 0:
		s.Successes--
	}
	s.DynamicBoost = boostFor(s)
	r.scores[agentID] = s
	r.mu.Unlock()

	r.logger.Debug("outcome amended", "agent_id", agentID, "success", success,
		"successes", s.Successes, "dynamic_boost", s.DynamicBoost)

	if r.store != nil {
		if err := r.store.SaveAgentScore(context.Background(), agentID, s); err != nil {
			r.logger.Warn("persist agent score failed", "agent_id", agentID, "error", err)
		}
	}
}

// Score returns the learned counters of a profile.
func (r *TaskRouter) Score(agentID string) domain.AgentScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scores[agentID]
}

// Scores returns a copy of all learned counters.
func (r *TaskRouter) Scores() map[string]domain.AgentScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.scores)
}

// LoadScores replaces learned counters with the persisted ones. Boosts are
// recomputed from the counters.
func (r *TaskRouter) LoadScores(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	stored, err := r.store.LoadAgentScores(ctx)
	if err != nil {
		return domain.WrapOp("router.load_scores", err)
	}
	r.mu.Lock()
	for id, s := range stored {
		s.DynamicBoost = boostFor(s)
		r.scores[id] = s
	}
	r.mu.Unlock()
	r.logger.Debug("agent scores loaded", "profiles", len(stored))
	return nil
}

// Profiles returns the routable profiles in registration order.
func (r *TaskRouter) Profiles() []domain.AgentProfile { return r.registry.List() }

func boostFor(s domain.AgentScore) float64 {
	if s.Total == 0 {
		return 0
	}
	return min(boostLimit, max(-boostLimit, (s.SuccessRate()-0.5)*4))
}
