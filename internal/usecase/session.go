package usecase

import (
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"lumen-agent/internal/domain"
)

// maxRecentSkills bounds the skill names a session hands to the router.
const maxRecentSkills = 5

// Session keeps the visible history of one conversation for hosts that do
// not store it themselves (the CLI and the gateway).
type Session struct {
	mu        sync.RWMutex
	ID        string
	msgs      []domain.Message
	recent    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates an empty session with a fresh ULID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message and updates the timestamp.
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.msgs = append(s.msgs, msg)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of the history.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.msgs)
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Truncate keeps only the last maxMessages messages.
func (s *Session) Truncate(maxMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxMessages < 0 || len(s.msgs) <= maxMessages {
		return
	}
	s.msgs = slices.Clone(s.msgs[len(s.msgs)-maxMessages:])
}

// LastActive returns when the session last changed.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UpdatedAt
}

// Reset drops the history.
func (s *Session) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.recent = nil
	s.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// RecentSkills returns the skills used by the latest turns, newest last.
func (s *Session) RecentSkills() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.recent)
}

// Record appends the assistant answer of a finished turn and remembers its
// skills. Cancelled turns leave the session unchanged; empty answers are
// not added to the history.
func (s *Session) Record(res *TurnResult) {
	if res == nil || res.Status == domain.TurnCancelled {
		return
	}
	if len(res.Skills) > 0 {
		s.mu.Lock()
		for _, n := range res.Skills {
			s.recent = slices.DeleteFunc(s.recent, func(r string) bool { return r == n })
			s.recent = append(s.recent, n)
		}
		if over := len(s.recent) - maxRecentSkills; over > 0 {
			s.recent = slices.Delete(s.recent, 0, over)
		}
		s.mu.Unlock()
	}
	if res.Text == "" {
		return
	}
	s.AddMessage(domain.Message{Role: domain.RoleAssistant, Content: res.Text})
}
