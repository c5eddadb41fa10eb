package relay

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/chatrelay/internal/domain"
)

// MemoryStore is the in-process RetentionStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.Record
}

var _ domain.RetentionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]domain.Record)}
}

// Put panics when rec.ID is already retained: ids are generated fresh by the
// engine, so a collision means a caller bug.
func (s *MemoryStore) Put(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		panic(fmt.Sprintf("relay: %v: %s", domain.ErrDuplicateRecord, rec.ID))
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) TakeExpired(_ context.Context, now time.Time, lifetime time.Duration) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.Record
	for id, rec := range s.records {
		if rec.Expired(now, lifetime) {
			expired = append(expired, rec)
			delete(s.records, id)
		}
	}

	slices.SortFunc(expired, func(a, b domain.Record) int {
		return a.ArrivedAt.Compare(b.ArrivedAt)
	})
	return expired, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
