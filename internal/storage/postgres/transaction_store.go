package postgres

import (
	"context"
	"fmt"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// TransactionStore is a PostgreSQL implementation of storage.TransactionStore.
// Rows are keyed by (signature, protocol): the same signature appears once per
// monitored program it touches.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new PostgreSQL transaction log.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// Upsert records a transaction sighting, idempotent on (signature, protocol).
// A block-scan sighting of a signature-walk row upgrades its provenance and
// attaches the body; slot and block time are never overwritten.
func (s *TransactionStore) Upsert(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec == nil || rec.Signature == "" || rec.Protocol == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tx_signatures (
			signature, protocol, slot, block_time, provenance, raw_body, err_body, memo
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signature, protocol) DO UPDATE
		SET provenance = CASE
		        WHEN EXCLUDED.provenance = 'block' THEN EXCLUDED.provenance
		        ELSE tx_signatures.provenance
		    END,
		    raw_body = COALESCE(EXCLUDED.raw_body, tx_signatures.raw_body),
		    err_body = COALESCE(tx_signatures.err_body, EXCLUDED.err_body),
		    memo = COALESCE(tx_signatures.memo, EXCLUDED.memo)
	`, rec.Signature, rec.Protocol, rec.Slot, rec.BlockTime, rec.Provenance,
		rec.RawBody, rec.ErrBody, rec.Memo)
	if err != nil {
		return fmt.Errorf("upsert transaction: %w", err)
	}
	return nil
}

// AttachBody stores the raw encoded body of an existing record.
func (s *TransactionStore) AttachBody(ctx context.Context, signature, protocol string, raw []byte) error {
	if signature == "" || protocol == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tx_signatures
		SET raw_body = $3
		WHERE signature = $1 AND protocol = $2
	`, signature, protocol, raw)
	if err != nil {
		return fmt.Errorf("attach transaction body: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetBySignature retrieves one record.
func (s *TransactionStore) GetBySignature(ctx context.Context, signature, protocol string) (*domain.TransactionRecord, error) {
	if signature == "" || protocol == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT signature, protocol, slot, block_time, provenance, raw_body, err_body, memo
		FROM tx_signatures
		WHERE signature = $1 AND protocol = $2
	`, signature, protocol)

	var rec domain.TransactionRecord
	err := row.Scan(&rec.Signature, &rec.Protocol, &rec.Slot, &rec.BlockTime,
		&rec.Provenance, &rec.RawBody, &rec.ErrBody, &rec.Memo)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &rec, nil
}

// MissingBodies lists records lacking raw bodies, oldest slot first.
func (s *TransactionStore) MissingBodies(ctx context.Context, limit int) ([]*domain.TransactionRef, error) {
	query := `
		SELECT signature, protocol, slot
		FROM tx_signatures
		WHERE raw_body IS NULL
		ORDER BY slot ASC, signature ASC, protocol ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missing bodies: %w", err)
	}
	defer rows.Close()

	var refs []*domain.TransactionRef
	for rows.Next() {
		var ref domain.TransactionRef
		if err := rows.Scan(&ref.Signature, &ref.Protocol, &ref.Slot); err != nil {
			return nil, fmt.Errorf("scan missing body row: %w", err)
		}
		refs = append(refs, &ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missing body rows: %w", err)
	}
	return refs, nil
}
