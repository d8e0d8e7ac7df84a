package storage

import (
	"context"

	"solana-lending-index/internal/domain"
)

// ProtocolStore provides access to the registered protocol set.
type ProtocolStore interface {
	// Insert registers a new protocol. Returns ErrDuplicateKey if the
	// address is already registered.
	Insert(ctx context.Context, p *domain.Protocol) error

	// GetByAddress retrieves a protocol. Returns ErrNotFound if unknown.
	GetByAddress(ctx context.Context, address string) (*domain.Protocol, error)

	// List retrieves all registered protocols.
	List(ctx context.Context) ([]*domain.Protocol, error)

	// SetLastBlockCollected advances the forward-scan watermark.
	SetLastBlockCollected(ctx context.Context, address string, slot int64) error
}

// WatermarkStore persists per-(protocol, stream) traversal positions.
// Positions must be durable before the caller proceeds to depend on them.
type WatermarkStore interface {
	// Get retrieves the watermark. Returns ErrNotFound on first run.
	Get(ctx context.Context, protocol string, stream domain.Stream) (*domain.Watermark, error)

	// Set upserts the watermark.
	Set(ctx context.Context, w *domain.Watermark) error
}

// TransactionStore is the deduplicated transaction log.
type TransactionStore interface {
	// Upsert records a transaction sighting. Idempotent on
	// (signature, protocol): a later write may upgrade the provenance and
	// attach a body, but never duplicates the row and never overwrites
	// slot or block time once set.
	Upsert(ctx context.Context, rec *domain.TransactionRecord) error

	// AttachBody stores the raw encoded body of an existing record.
	// Returns ErrNotFound if the record does not exist.
	AttachBody(ctx context.Context, signature, protocol string, raw []byte) error

	// GetBySignature retrieves one record. Returns ErrNotFound if missing.
	GetBySignature(ctx context.Context, signature, protocol string) (*domain.TransactionRecord, error)

	// MissingBodies lists records lacking raw bodies, oldest slot first.
	MissingBodies(ctx context.Context, limit int) ([]*domain.TransactionRef, error)
}

// EventStore holds decoded protocol events for replay.
type EventStore interface {
	// InsertBulk stores decoded events, skipping duplicates.
	InsertBulk(ctx context.Context, events []*domain.ProtocolEvent) error

	// BatchesAfter returns instruction batches for a protocol with slot
	// strictly greater than afterSlot, ordered by
	// (slot, transaction_index, instruction_index). Events within a batch
	// share one (tx_signature, instruction_index) and are ordered by
	// event index. Implementations must never truncate the result inside
	// a slot: when the limit lands mid-slot, every remaining batch of
	// that slot is included, so the slot-granular replay watermark can
	// never strand events.
	BatchesAfter(ctx context.Context, protocol string, afterSlot int64, limit int) ([][]*domain.ProtocolEvent, error)
}

// LoanStateStore persists replayed loan entity snapshots.
type LoanStateStore interface {
	// ListByProtocol retrieves all loan states for a protocol.
	ListByProtocol(ctx context.Context, protocol string) ([]*domain.LoanState, error)

	// LastSlot returns the protocol's replay watermark.
	// Returns ErrNotFound before the first batch is applied.
	LastSlot(ctx context.Context, protocol string) (int64, error)

	// SaveBatch persists the given states and advances the replay
	// watermark to lastSlot in a single transaction, so that a crash can
	// never separate an applied mutation from its watermark.
	SaveBatch(ctx context.Context, protocol string, states []*domain.LoanState, lastSlot int64) error
}

// HealthSnapshotStore persists valuation output.
type HealthSnapshotStore interface {
	// InsertBulk appends snapshots.
	InsertBulk(ctx context.Context, snaps []*domain.HealthSnapshot) error
}
