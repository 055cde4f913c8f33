package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bonvoyage/internal/domain"
)

// MemoryStore is a process-local store used when Redis is disabled.
// Reads return copies so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	partials map[string][]domain.Entry
	replied  map[string]map[string]struct{}
	finals   map[string][]byte
	params   map[string]domain.RequestContext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partials: make(map[string][]domain.Entry),
		replied:  make(map[string]map[string]struct{}),
		finals:   make(map[string][]byte),
		params:   make(map[string]domain.RequestContext),
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Append(_ context.Context, requestID string, entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partials[requestID] = append(s.partials[requestID], copyEntry(entry))
	if s.replied[requestID] == nil {
		s.replied[requestID] = make(map[string]struct{})
	}
	s.replied[requestID][entry.Provider] = struct{}{}
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context, requestID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.partials[requestID]
	result := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		result = append(result, copyEntry(e))
	}
	return result, nil
}

func (s *MemoryStore) Replied(_ context.Context, requestID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replied[requestID]), nil
}

func (s *MemoryStore) PublishFinal(_ context.Context, requestID string, journeys []domain.Journey) error {
	if journeys == nil {
		journeys = []domain.Journey{}
	}
	data, err := json.Marshal(journeys)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals[requestID] = data
	return nil
}

func (s *MemoryStore) ReadFinal(_ context.Context, requestID string) ([]domain.Journey, error) {
	s.mu.RLock()
	data, ok := s.finals[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var journeys []domain.Journey
	if err := json.Unmarshal(data, &journeys); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return journeys, nil
}

func (s *MemoryStore) SaveRequestContext(_ context.Context, rc domain.RequestContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc.Providers = append([]string(nil), rc.Providers...)
	s.params[rc.RequestID] = rc
	return nil
}

func (s *MemoryStore) GetRequestContext(_ context.Context, requestID string) (domain.RequestContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.params[requestID]
	if !ok {
		return domain.RequestContext{}, ErrNotFound
	}
	rc.Providers = append([]string(nil), rc.Providers...)
	return rc, nil
}

func copyEntry(e domain.Entry) domain.Entry {
	c := e
	c.Result = make([]json.RawMessage, len(e.Result))
	for i, r := range e.Result {
		c.Result[i] = append(json.RawMessage(nil), r...)
	}
	if e.Result == nil {
		c.Result = nil
	}
	return c
}
