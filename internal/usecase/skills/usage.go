package skills

import (
	"context"

	"lumen-agent/internal/domain"
)

// successWeight is the EMA weight of the newest observation.
const successWeight = 0.2

// RecordUsage counts one use of a skill and folds the outcome into its
// moving average success rate. The store, when configured, is written
// through; store errors are logged only.
func (m *Matcher) RecordUsage(name string, success bool) {
	obs := 0.0
	if success {
		obs = 1
	}

	m.mu.Lock()
	u, ok := m.usage[name]
	if !ok {
		u = domain.NewSkillUsage()
	}
	u.UseCount++
	u.AverageSuccessRate = (1-successWeight)*u.AverageSuccessRate + successWeight*obs
	u.LastUsed = m.now()
	m.usage[name] = u
	m.mu.Unlock()

	m.persist(name, u)
}

// AmendUsage replaces the newest observation of a skill with the opposite
// verdict. The use count is unchanged.
func (m *Matcher) AmendUsage(name string, success bool) {
	delta := -successWeight
	if success {
		delta = successWeight
	}

	m.mu.Lock()
	u, ok := m.usage[name]
	if !ok {
		m.mu.Unlock()
		m.RecordUsage(name, success)
		return
	}
	u.AverageSuccessRate = clamp01(u.AverageSuccessRate + delta)
	m.usage[name] = u
	m.mu.Unlock()

	m.persist(name, u)
}

// SetUserPreference records an explicit user preference in [0, 1].
func (m *Matcher) SetUserPreference(name string, pref float64) {
	m.mu.Lock()
	u, ok := m.usage[name]
	if !ok {
		u = domain.NewSkillUsage()
	}
	u.UserPreference = clamp01(pref)
	m.usage[name] = u
	m.mu.Unlock()

	m.persist(name, u)
}

// Usage returns the stats of a skill, neutral when never used.
func (m *Matcher) Usage(name string) domain.SkillUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.usage[name]; ok {
		return u
	}
	return domain.NewSkillUsage()
}

// LoadUsage replaces in-memory stats with the persisted ones.
func (m *Matcher) LoadUsage(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	stored, err := m.store.LoadSkillUsage(ctx)
	if err != nil {
		return domain.WrapOp("skills.load_usage", err)
	}
	m.mu.Lock()
	for name, u := range stored {
		m.usage[name] = u
	}
	m.mu.Unlock()
	m.logger.Debug("skill usage loaded", "skills", len(stored))
	return nil
}

func (m *Matcher) persist(name string, u domain.SkillUsage) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSkillUsage(context.Background(), name, u); err != nil {
		m.logger.Warn("persist skill usage failed", "skill", name, "error", err)
	}
}
