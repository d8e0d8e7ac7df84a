package memory

import (
	"context"
	"sort"
	"sync"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

type txKey struct {
	Signature string
	Protocol  string
}

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[txKey]*domain.TransactionRecord
}

// NewTransactionStore creates a new in-memory transaction log.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{data: make(map[txKey]*domain.TransactionRecord)}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// Upsert records a transaction sighting, idempotent on (signature, protocol).
// Slot and block time are immutable once set; a block-scan sighting upgrades
// the provenance of a signature-walk record and attaches the body in place.
func (s *TransactionStore) Upsert(_ context.Context, rec *domain.TransactionRecord) error {
	if rec == nil || rec.Signature == "" || rec.Protocol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := txKey{rec.Signature, rec.Protocol}
	existing, ok := s.data[key]
	if !ok {
		cp := *rec
		cp.RawBody = append([]byte(nil), rec.RawBody...)
		s.data[key] = &cp
		return nil
	}

	if rec.Provenance == domain.ProvenanceBlockScan {
		existing.Provenance = domain.ProvenanceBlockScan
	}
	if len(rec.RawBody) > 0 {
		existing.RawBody = append([]byte(nil), rec.RawBody...)
	}
	if existing.ErrBody == nil && rec.ErrBody != nil {
		existing.ErrBody = rec.ErrBody
	}
	if existing.Memo == nil && rec.Memo != nil {
		existing.Memo = rec.Memo
	}
	return nil
}

// AttachBody stores the raw body of an existing record.
func (s *TransactionStore) AttachBody(_ context.Context, signature, protocol string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[txKey{signature, protocol}]
	if !ok {
		return storage.ErrNotFound
	}
	rec.RawBody = append([]byte(nil), raw...)
	return nil
}

// GetBySignature retrieves one record.
func (s *TransactionStore) GetBySignature(_ context.Context, signature, protocol string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[txKey{signature, protocol}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	cp.RawBody = append([]byte(nil), rec.RawBody...)
	return &cp, nil
}

// MissingBodies lists records lacking raw bodies, oldest slot first.
func (s *TransactionStore) MissingBodies(_ context.Context, limit int) ([]*domain.TransactionRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []*domain.TransactionRef
	for key, rec := range s.data {
		if len(rec.RawBody) == 0 {
			refs = append(refs, &domain.TransactionRef{
				Signature: key.Signature,
				Protocol:  key.Protocol,
				Slot:      rec.Slot,
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Slot != refs[j].Slot {
			return refs[i].Slot < refs[j].Slot
		}
		if refs[i].Signature != refs[j].Signature {
			return refs[i].Signature < refs[j].Signature
		}
		return refs[i].Protocol < refs[j].Protocol
	})

	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}
