package memory

import (
	"context"
	"sort"
	"sync"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// ProtocolStore is an in-memory implementation of storage.ProtocolStore.
type ProtocolStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Protocol
}

// NewProtocolStore creates a new in-memory protocol store.
func NewProtocolStore() *ProtocolStore {
	return &ProtocolStore{data: make(map[string]*domain.Protocol)}
}

var _ storage.ProtocolStore = (*ProtocolStore)(nil)

// Insert registers a new protocol. Returns ErrDuplicateKey if the address exists.
func (s *ProtocolStore) Insert(_ context.Context, p *domain.Protocol) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[p.Address]; ok {
		return storage.ErrDuplicateKey
	}

	cp := *p
	s.data[p.Address] = &cp
	return nil
}

// GetByAddress retrieves a protocol by address.
func (s *ProtocolStore) GetByAddress(_ context.Context, address string) (*domain.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// List retrieves all registered protocols ordered by address.
func (s *ProtocolStore) List(_ context.Context) ([]*domain.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Protocol, 0, len(s.data))
	for _, p := range s.data {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

// SetLastBlockCollected advances the forward-scan watermark.
func (s *ProtocolStore) SetLastBlockCollected(_ context.Context, address string, slot int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data[address]
	if !ok {
		return storage.ErrNotFound
	}
	p.LastBlockCollected = &slot
	return nil
}
