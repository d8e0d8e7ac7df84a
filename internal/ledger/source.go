package ledger

import (
	"context"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// EventSource feeds the replay loop with decoded instruction batches in
// chain order. Implementations must return batches ordered by
// (slot, transaction_index, instruction_index) with events inside a batch
// ordered by event index; after a halt the replayer re-derives the query
// from the persisted watermark instead of re-sorting in memory.
type EventSource interface {
	NextBatches(ctx context.Context, protocol string, afterSlot int64, limit int) ([][]*domain.ProtocolEvent, error)
}

// StoreEventSource reads batches from the decoded-event store.
type StoreEventSource struct {
	store storage.EventStore
}

// NewStoreEventSource creates an EventSource backed by an EventStore.
func NewStoreEventSource(store storage.EventStore) *StoreEventSource {
	return &StoreEventSource{store: store}
}

var _ EventSource = (*StoreEventSource)(nil)

// NextBatches returns the next ordered instruction batches above afterSlot.
func (s *StoreEventSource) NextBatches(ctx context.Context, protocol string, afterSlot int64, limit int) ([][]*domain.ProtocolEvent, error) {
	return s.store.BatchesAfter(ctx, protocol, afterSlot, limit)
}
