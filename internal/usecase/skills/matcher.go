// Package skills ranks instruction snippets ("skills") against a query and
// tracks how well each one performs.
package skills

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/lru"
)

// Defaults applied when Options fields are zero.
const (
	DefaultMaxPerQuery          = 3
	DefaultCacheSize            = 20
	DefaultPreferenceConfidence = 0.7
	DefaultMinWordLength        = 3
	DefaultSimilarityMinScore   = 0.35
)

// Options tunes ranking and caching.
type Options struct {
	MaxPerQuery          int
	CacheSize            int
	PreferenceConfidence float64
	MinWordLength        int
	SimilarityMinScore   float64
}

func (o *Options) applyDefaults() {
	if o.MaxPerQuery <= 0 {
		o.MaxPerQuery = DefaultMaxPerQuery
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.PreferenceConfidence <= 0 {
		o.PreferenceConfidence = DefaultPreferenceConfidence
	}
	if o.MinWordLength <= 0 {
		o.MinWordLength = DefaultMinWordLength
	}
	if o.SimilarityMinScore <= 0 {
		o.SimilarityMinScore = DefaultSimilarityMinScore
	}
}

// Deps holds the matcher's collaborators. Registry is required; the others
// are optional.
type Deps struct {
	Registry   domain.SkillRegistry
	Similarity domain.SimilaritySearcher
	Store      domain.StatsStore
	Logger     *slog.Logger
}

// Query describes one lookup.
type Query struct {
	Text    string
	AgentID string
	// Preferred lists the skills the routed profile prefers.
	Preferred []string
	// Recent lists skills used in the last turns of the conversation.
	Recent []string
}

type indexEntry struct {
	meta         domain.SkillMetadata
	capabilities []string // lowercased
}

// Matcher owns the capability index, the skill content cache and the usage
// statistics. All methods are safe for concurrent use.
type Matcher struct {
	registry   domain.SkillRegistry
	similarity domain.SimilaritySearcher
	store      domain.StatsStore
	logger     *slog.Logger
	opts       Options
	now        func() time.Time

	cache *lru.Cache[string, domain.Skill]

	mu    sync.RWMutex
	index map[string]indexEntry
	usage map[string]domain.SkillUsage
}

// NewMatcher creates a matcher with an empty index. Call Refresh to load it.
func NewMatcher(deps Deps, opts Options) *Matcher {
	opts.applyDefaults()
	return &Matcher{
		registry:   deps.Registry,
		similarity: deps.Similarity,
		store:      deps.Store,
		logger:     logger.Component(deps.Logger, "skills"),
		opts:       opts,
		now:        time.Now,
		cache:      lru.New[string, domain.Skill](opts.CacheSize),
		index:      make(map[string]indexEntry),
		usage:      make(map[string]domain.SkillUsage),
	}
}

// MaxPerQuery returns the configured result cap.
func (m *Matcher) MaxPerQuery() int { return m.opts.MaxPerQuery }

// Refresh rebuilds the capability index from the registry and drops cached
// skill content. On failure the previous index stays in place.
func (m *Matcher) Refresh(ctx context.Context) error {
	metas, err := m.registry.List(ctx)
	if err != nil {
		return domain.WrapOp("skills.refresh", fmt.Errorf("%w: %v", domain.ErrSkillRegistryUnavailable, err))
	}

	index := make(map[string]indexEntry, len(metas))
	for _, meta := range metas {
		if !meta.Enabled || meta.Name == "" {
			continue
		}
		caps := make([]string, 0, len(meta.Capabilities))
		for _, c := range meta.Capabilities {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				caps = append(caps, c)
			}
		}
		index[meta.Name] = indexEntry{meta: meta, capabilities: caps}
	}

	m.mu.Lock()
	m.index = index
	m.mu.Unlock()
	m.cache.Purge()

	m.logger.Info("skill index refreshed", "skills", len(index), "listed", len(metas))
	return nil
}

// Indexed returns the metadata of every enabled skill, sorted by name.
func (m *Matcher) Indexed() []domain.SkillMetadata {
	m.mu.RLock()
	out := make([]domain.SkillMetadata, 0, len(m.index))
	for _, e := range m.index {
		out = append(out, e.meta)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.SkillMetadata) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// FindRelevantSkills runs every strategy, keeps the best confidence per
// skill and returns at most MaxPerQuery matches sorted by descending
// confidence. Similarity failures degrade to the other strategies.
func (m *Matcher) FindRelevantSkills(ctx context.Context, q Query) []domain.SkillMatch {
	best := make(map[string]domain.SkillMatch)
	offer := func(c domain.SkillMatch) {
		if cur, ok := best[c.Name]; !ok || c.Confidence > cur.Confidence {
			best[c.Name] = c
		}
	}

	m.mu.RLock()
	for _, c := range m.byCapability(q.Text) {
		offer(c)
	}
	for _, c := range m.byRecentUse(q.Recent) {
		offer(c)
	}
	for _, c := range m.byPreference(q.AgentID, q.Preferred) {
		offer(c)
	}
	m.mu.RUnlock()

	for _, c := range m.bySimilarity(ctx, q.Text) {
		offer(c)
	}

	out := make([]domain.SkillMatch, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.SkillMatch) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > m.opts.MaxPerQuery {
		out = out[:m.opts.MaxPerQuery]
	}
	return out
}

// Load returns a skill's full content through the LRU cache.
func (m *Matcher) Load(ctx context.Context, name string) (domain.Skill, error) {
	if s, ok := m.cache.Get(name); ok {
		return s, nil
	}
	s, err := m.registry.Load(ctx, name)
	if err != nil {
		return domain.Skill{}, domain.WrapOp("skills.load", err)
	}
	m.cache.Put(name, s)
	return s, nil
}

// Attach fills Instructions on each match. Matches whose content cannot be
// loaded are dropped.
func (m *Matcher) Attach(ctx context.Context, matches []domain.SkillMatch) []domain.SkillMatch {
	out := make([]domain.SkillMatch, 0, len(matches))
	for _, match := range matches {
		s, err := m.Load(ctx, match.Name)
		if err != nil {
			m.logger.Warn("skill content unavailable", "skill", match.Name, "error", err)
			continue
		}
		match.Instructions = s.Instructions
		out = append(out, match)
	}
	return out
}

// CachedNames returns the names whose content is cached, least recently
// used first.
func (m *Matcher) CachedNames() []string { return m.cache.Keys() }
