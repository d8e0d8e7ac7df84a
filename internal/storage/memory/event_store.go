package memory

import (
	"context"
	"sort"
	"sync"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

type eventKey struct {
	Protocol         string
	TxSignature      string
	InstructionIndex int
	EventIndex       int
}

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.ProtocolEvent
	keys map[eventKey]bool
}

// NewEventStore creates a new in-memory decoded-event store.
func NewEventStore() *EventStore {
	return &EventStore{keys: make(map[eventKey]bool)}
}

var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk stores decoded events, silently skipping duplicates.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.ProtocolEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
		key := eventKey{e.Protocol, e.TxSignature, e.InstructionIndex, e.EventIndex}
		if s.keys[key] {
			continue
		}
		cp := *e
		s.data = append(s.data, &cp)
		s.keys[key] = true
	}
	return nil
}

// BatchesAfter returns instruction batches ordered by chain position. The
// limit is stretched to the end of the slot it lands in, so a caller that
// persists a slot-granular watermark after the last batch never strands
// the rest of that slot.
func (s *EventStore) BatchesAfter(_ context.Context, protocol string, afterSlot int64, limit int) ([][]*domain.ProtocolEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var selected []*domain.ProtocolEvent
	for _, e := range s.data {
		if e.Protocol == protocol && e.Slot > afterSlot {
			cp := *e
			selected = append(selected, &cp)
		}
	}

	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		if a.TransactionIndex != b.TransactionIndex {
			return a.TransactionIndex < b.TransactionIndex
		}
		if a.InstructionIndex != b.InstructionIndex {
			return a.InstructionIndex < b.InstructionIndex
		}
		return a.EventIndex < b.EventIndex
	})

	var batches [][]*domain.ProtocolEvent
	var current []*domain.ProtocolEvent
	for _, e := range selected {
		if len(current) > 0 {
			head := current[0]
			if head.TxSignature != e.TxSignature || head.InstructionIndex != e.InstructionIndex {
				batches = append(batches, current)
				current = nil
			}
		}
		current = append(current, e)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	if limit > 0 && len(batches) > limit {
		cut := limit
		for cut < len(batches) && batches[cut][0].Slot == batches[cut-1][0].Slot {
			cut++
		}
		batches = batches[:cut]
	}
	return batches, nil
}
