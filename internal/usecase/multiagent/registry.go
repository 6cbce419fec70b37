package multiagent

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
)

// profileEntry is a registered profile with its compiled trigger pattern
// and lowercased capability keywords.
type profileEntry struct {
	profile  domain.AgentProfile
	pattern  *regexp.Regexp
	keywords []string
}

// Registry holds the static profile table in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []*profileEntry
	byID    map[string]*profileEntry
	logger  *slog.Logger
}

// NewRegistry registers profiles in order. It fails on duplicate ids,
// empty ids, or patterns that do not compile.
func NewRegistry(profiles []domain.AgentProfile, l *slog.Logger) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]*profileEntry, len(profiles)),
		logger: logger.Component(l, "profiles"),
	}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a profile.
func (r *Registry) Register(p domain.AgentProfile) error {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return fmt.Errorf("%w: profile id is empty", domain.ErrInvalidInput)
	}
	e := &profileEntry{profile: p}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("%w: profile %s pattern: %v", domain.ErrInvalidInput, id, err)
		}
		e.pattern = re
	}
	for _, c := range p.Capabilities {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			e.keywords = append(e.keywords, c)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("%w: duplicate profile %q", domain.ErrInvalidInput, id)
	}
	r.byID[id] = e
	r.entries = append(r.entries, e)
	r.logger.Debug("profile registered", "agent_id", id, "capabilities", len(e.keywords))
	return nil
}

// Get returns the profile with the given id, or ErrNotFound.
func (r *Registry) Get(id string) (domain.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return domain.AgentProfile{}, fmt.Errorf("%w: profile %q", domain.ErrNotFound, id)
	}
	return e.profile, nil
}

// List returns all profiles in registration order.
func (r *Registry) List() []domain.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AgentProfile, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.profile
	}
	return out
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names maps lowercase ids and names (spaces removed) to profile ids, for
// the @prefix override.
func (r *Registry) Names() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, 2*len(r.entries))
	for _, e := range r.entries {
		id := e.profile.ID
		out[strings.ToLower(id)] = id
		if name := strings.ToLower(strings.ReplaceAll(e.profile.Name, " ", "")); name != "" {
			if _, taken := out[name]; !taken {
				out[name] = id
			}
		}
	}
	return out
}

func (r *Registry) snapshot() []*profileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*profileEntry(nil), r.entries...)
}
