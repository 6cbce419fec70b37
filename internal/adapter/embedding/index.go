package embedding

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
)

// Compile-time interface check.
var _ domain.SimilaritySearcher = (*SkillIndex)(nil)

// SkillIndex ranks skills by cosine similarity between the query and each
// skill's name, description and capabilities. Disabled skills are not
// indexed.
type SkillIndex struct {
	provider domain.EmbeddingProvider
	registry domain.SkillRegistry
	logger   *slog.Logger

	mu      sync.RWMutex
	names   []string
	vectors [][]float32
	built   bool
}

// NewSkillIndex creates an empty index. Search builds it on first use.
func NewSkillIndex(provider domain.EmbeddingProvider, registry domain.SkillRegistry, l *slog.Logger) *SkillIndex {
	return &SkillIndex{
		provider: provider,
		registry: registry,
		logger:   logger.Component(l, "skill_index"),
	}
}

// Rebuild re-embeds every enabled skill in the registry.
func (x *SkillIndex) Rebuild(ctx context.Context) error {
	metas, err := x.registry.List(ctx)
	if err != nil {
		return domain.WrapOp("skill_index.rebuild", err)
	}

	var (
		names []string
		docs  []string
	)
	for _, m := range metas {
		if !m.Enabled {
			continue
		}
		names = append(names, m.Name)
		docs = append(docs, skillDocument(m))
	}

	var vectors [][]float32
	if len(docs) > 0 {
		vectors, err = x.provider.Embed(ctx, docs)
		if err != nil {
			return domain.WrapOp("skill_index.rebuild", err)
		}
		if err := checkCount(len(vectors), len(docs)); err != nil {
			return domain.WrapOp("skill_index.rebuild", err)
		}
	}

	x.mu.Lock()
	x.names, x.vectors, x.built = names, vectors, true
	x.mu.Unlock()
	x.logger.Debug("skill index rebuilt", "provider", x.provider.Name(), "skills", len(names))
	return nil
}

// Search implements domain.SimilaritySearcher. Hits are sorted by
// descending score; limit <= 0 returns all of them.
func (x *SkillIndex) Search(ctx context.Context, query string, limit int) ([]domain.SimilarityHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	x.mu.RLock()
	built := x.built
	x.mu.RUnlock()
	if !built {
		if err := x.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	qv, err := x.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, domain.WrapOp("skill_index.search", err)
	}
	if len(qv) != 1 {
		return nil, domain.WrapOp("skill_index.search", checkCount(len(qv), 1))
	}

	x.mu.RLock()
	hits := make([]domain.SimilarityHit, 0, len(x.names))
	for i, name := range x.names {
		hits = append(hits, domain.SimilarityHit{Name: name, Score: cosine(qv[0], x.vectors[i])})
	}
	x.mu.RUnlock()

	slices.SortFunc(hits, func(a, b domain.SimilarityHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of indexed skills.
func (x *SkillIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.names)
}

func skillDocument(m domain.SkillMetadata) string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	if m.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(m.Description)
	}
	if len(m.Capabilities) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(m.Capabilities, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
