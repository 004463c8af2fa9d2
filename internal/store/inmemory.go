package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	token     string
	profile   *Profile
	session   *SessionRecord
	journal   []JournalEntry
	summaries []SessionSummary
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *InMemoryStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.session = nil
	return nil
}

func (s *InMemoryStore) Profile(_ context.Context) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return DefaultProfile(), nil
	}
	return *s.profile, nil
}

func (s *InMemoryStore) SaveProfile(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
	return nil
}

func (s *InMemoryStore) SaveSession(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &rec
	return nil
}

func (s *InMemoryStore) LoadSession(_ context.Context) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	rec := *s.session
	return &rec, nil
}

func (s *InMemoryStore) ClearSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func (s *InMemoryStore) AppendJournal(_ context.Context, entry JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	s.journal = append(s.journal, entry)
	return nil
}

func (s *InMemoryStore) ListJournal(_ context.Context, limit int) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.journal, limit), nil
}

func (s *InMemoryStore) SaveSummary(_ context.Context, sum SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *InMemoryStore) ListSummaries(_ context.Context, limit int) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.summaries, limit), nil
}

func (s *InMemoryStore) Close() error { return nil }

func lastN[T any](arr []T, limit int) []T {
	if len(arr) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]T, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out
}
