package memory

import (
	"context"
	"sync"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// HealthSnapshotStore is an in-memory implementation of storage.HealthSnapshotStore.
type HealthSnapshotStore struct {
	mu   sync.RWMutex
	data []*domain.HealthSnapshot
}

// NewHealthSnapshotStore creates a new in-memory health snapshot store.
func NewHealthSnapshotStore() *HealthSnapshotStore {
	return &HealthSnapshotStore{}
}

var _ storage.HealthSnapshotStore = (*HealthSnapshotStore)(nil)

// InsertBulk appends snapshots.
func (s *HealthSnapshotStore) InsertBulk(_ context.Context, snaps []*domain.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		if snap == nil {
			return storage.ErrInvalidInput
		}
		cp := *snap
		s.data = append(s.data, &cp)
	}
	return nil
}

// All returns every stored snapshot. Test helper.
func (s *HealthSnapshotStore) All() []*domain.HealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.HealthSnapshot, len(s.data))
	for i, snap := range s.data {
		cp := *snap
		out[i] = &cp
	}
	return out
}
