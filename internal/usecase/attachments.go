package usecase

import (
	"sync"

	"lumen-agent/internal/domain"
)

// MemoryAttachmentStore is an in-memory domain.AttachmentStore scoped to
// one conversation.
type MemoryAttachmentStore struct {
	mu      sync.RWMutex
	items   map[string]domain.Attachment
	current string
}

// NewMemoryAttachmentStore creates an empty store.
func NewMemoryAttachmentStore() *MemoryAttachmentStore {
	return &MemoryAttachmentStore{items: make(map[string]domain.Attachment)}
}

// Set stores a and makes it the current attachment.
func (s *MemoryAttachmentStore) Set(a domain.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[a.ID] = a
	s.current = a.ID
}

// Get returns the attachment with id.
func (s *MemoryAttachmentStore) Get(id string) (domain.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	return a, ok
}

// Current returns the most recently set attachment.
func (s *MemoryAttachmentStore) Current() (domain.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return domain.Attachment{}, false
	}
	a, ok := s.items[s.current]
	return a, ok
}

// Clear removes every attachment.
func (s *MemoryAttachmentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.items)
	s.current = ""
}
