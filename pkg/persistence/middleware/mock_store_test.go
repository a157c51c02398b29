package middleware_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aretw0/advisor/pkg/domain"
)

// MockStore keeps serialized snapshots, like a real backend would.
type MockStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string][]byte),
	}
}

func (s *MockStore) Save(ctx context.Context, sessionID string, rs *domain.ResultSet) error {
	b, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = b
	return nil
}

func (s *MockStore) Load(ctx context.Context, sessionID string) (*domain.ResultSet, error) {
	s.mu.Lock()
	b, ok := s.data[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var rs domain.ResultSet
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (s *MockStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// Raw returns the stored document of a session.
func (s *MockStore) Raw(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.data[sessionID])
}
