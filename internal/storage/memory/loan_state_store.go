package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

type loanKey struct {
	Protocol string
	User     string
}

// LoanStateStore is an in-memory implementation of storage.LoanStateStore.
type LoanStateStore struct {
	mu       sync.RWMutex
	data     map[loanKey]*domain.LoanState
	lastSlot map[string]int64
}

// NewLoanStateStore creates a new in-memory loan state store.
func NewLoanStateStore() *LoanStateStore {
	return &LoanStateStore{
		data:     make(map[loanKey]*domain.LoanState),
		lastSlot: make(map[string]int64),
	}
}

var _ storage.LoanStateStore = (*LoanStateStore)(nil)

func copyPortfolio(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyLoanState(s *domain.LoanState) *domain.LoanState {
	cp := *s
	cp.Collateral = copyPortfolio(s.Collateral)
	cp.Debt = copyPortfolio(s.Debt)
	return &cp
}

// ListByProtocol retrieves all loan states for a protocol ordered by user.
func (s *LoanStateStore) ListByProtocol(_ context.Context, protocol string) ([]*domain.LoanState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LoanState
	for key, state := range s.data {
		if key.Protocol == protocol {
			result = append(result, copyLoanState(state))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].User < result[j].User })
	return result, nil
}

// LastSlot returns the protocol's replay watermark.
func (s *LoanStateStore) LastSlot(_ context.Context, protocol string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.lastSlot[protocol]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return slot, nil
}

// SaveBatch persists states and the replay watermark together.
func (s *LoanStateStore) SaveBatch(_ context.Context, protocol string, states []*domain.LoanState, lastSlot int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, state := range states {
		if state == nil || state.User == "" {
			return storage.ErrInvalidInput
		}
		s.data[loanKey{protocol, state.User}] = copyLoanState(state)
	}
	s.lastSlot[protocol] = lastSlot
	return nil
}
