package memory

import (
	"context"
	"sync"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

type watermarkKey struct {
	Protocol string
	Stream   domain.Stream
}

// WatermarkStore is an in-memory implementation of storage.WatermarkStore.
type WatermarkStore struct {
	mu   sync.RWMutex
	data map[watermarkKey]*domain.Watermark
}

// NewWatermarkStore creates a new in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{data: make(map[watermarkKey]*domain.Watermark)}
}

var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get retrieves the watermark for (protocol, stream).
func (s *WatermarkStore) Get(_ context.Context, protocol string, stream domain.Stream) (*domain.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[watermarkKey{protocol, stream}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// Set upserts the watermark.
func (s *WatermarkStore) Set(_ context.Context, w *domain.Watermark) error {
	if w == nil || w.Protocol == "" || w.Stream == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *w
	s.data[watermarkKey{w.Protocol, w.Stream}] = &cp
	return nil
}
