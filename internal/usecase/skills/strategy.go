package skills

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"lumen-agent/internal/domain"
)

// Callers of the by* helpers except bySimilarity hold m.mu for reading.

// byCapability scores each skill by the fraction of query words that
// substring-match one of its capabilities (in either direction). The best
// capability of a skill determines its confidence.
func (m *Matcher) byCapability(text string) []domain.SkillMatch {
	words := queryWords(text, m.opts.MinWordLength)
	if len(words) == 0 {
		return nil
	}

	var out []domain.SkillMatch
	for name, e := range m.index {
		var bestFrac float64
		var bestCap string
		for _, c := range e.capabilities {
			matched := 0
			for _, w := range words {
				if strings.Contains(c, w) || strings.Contains(w, c) {
					matched++
				}
			}
			if frac := float64(matched) / float64(len(words)); frac > bestFrac {
				bestFrac, bestCap = frac, c
			}
		}
		if bestFrac > 0 {
			out = append(out, domain.SkillMatch{
				Name:       name,
				Confidence: bestFrac,
				Reason:     fmt.Sprintf("capability %q", bestCap),
			})
		}
	}
	return out
}

// byRecentUse boosts recently used skills by their track record.
func (m *Matcher) byRecentUse(recent []string) []domain.SkillMatch {
	var out []domain.SkillMatch
	for _, name := range recent {
		if _, ok := m.index[name]; !ok {
			continue
		}
		u, ok := m.usage[name]
		if !ok {
			u = domain.NewSkillUsage()
		}
		out = append(out, domain.SkillMatch{
			Name:       name,
			Confidence: clamp01(0.5 + 0.3*u.AverageSuccessRate + 0.2*u.UserPreference),
			Reason:     "recently used",
		})
	}
	return out
}

// byPreference gives every skill the routed profile prefers a fixed confidence.
func (m *Matcher) byPreference(agentID string, preferred []string) []domain.SkillMatch {
	var out []domain.SkillMatch
	for _, name := range preferred {
		if _, ok := m.index[name]; !ok {
			continue
		}
		reason := "preferred"
		if agentID != "" {
			reason = "preferred by " + agentID
		}
		out = append(out, domain.SkillMatch{Name: name, Confidence: m.opts.PreferenceConfidence, Reason: reason})
	}
	return out
}

// bySimilarity asks the optional embedding index. Errors are logged and
// yield no candidates.
func (m *Matcher) bySimilarity(ctx context.Context, text string) []domain.SkillMatch {
	if m.similarity == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	hits, err := m.similarity.Search(ctx, text, m.opts.MaxPerQuery)
	if err != nil {
		m.logger.Warn("similarity search failed, using keyword strategies only",
			"error", fmt.Errorf("%w: %v", domain.ErrSkillRegistryUnavailable, err))
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SkillMatch
	for _, h := range hits {
		if h.Score < m.opts.SimilarityMinScore {
			continue
		}
		if _, ok := m.index[h.Name]; !ok {
			continue
		}
		out = append(out, domain.SkillMatch{Name: h.Name, Confidence: clamp01(h.Score), Reason: "semantic similarity"})
	}
	return out
}

// queryWords lowercases text and splits it into letter/digit runs at least
// minLen runes long. Duplicates are kept once.
func queryWords(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minLen || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
