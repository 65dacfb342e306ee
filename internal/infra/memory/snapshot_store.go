package memory

import (
	"context"
	"sync"
	"time"

	"carbon-quiz/internal/domain"
)

// SnapshotStore is an in-memory implementation of app.SnapshotStore.
// Entries expire after ttl; expired entries are dropped on access.
type SnapshotStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.RWMutex
	snapshots map[domain.SessionIdentity]storedSnapshot
}

type storedSnapshot struct {
	snapshot  domain.ContextSnapshot
	expiresAt time.Time
}

func NewSnapshotStore(ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		ttl:       ttl,
		clock:     time.Now,
		snapshots: make(map[domain.SessionIdentity]storedSnapshot),
	}
}

func (s *SnapshotStore) Put(_ context.Context, id domain.SessionIdentity, snap domain.ContextSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := storedSnapshot{snapshot: snap}
	if s.ttl > 0 {
		entry.expiresAt = s.clock().Add(s.ttl)
	}
	s.snapshots[id] = entry
	return nil
}

func (s *SnapshotStore) Get(_ context.Context, id domain.SessionIdentity) (domain.ContextSnapshot, error) {
	s.mu.RLock()
	entry, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ContextSnapshot{}, domain.ErrSnapshotNotFound
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		s.mu.Lock()
		delete(s.snapshots, id)
		s.mu.Unlock()
		return domain.ContextSnapshot{}, domain.ErrSnapshotNotFound
	}
	return entry.snapshot, nil
}

func (s *SnapshotStore) Delete(_ context.Context, id domain.SessionIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}
