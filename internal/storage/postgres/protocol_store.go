package postgres

import (
	"context"
	"fmt"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// ProtocolStore is a PostgreSQL implementation of storage.ProtocolStore.
type ProtocolStore struct {
	pool *Pool
}

// NewProtocolStore creates a new PostgreSQL protocol store.
func NewProtocolStore(pool *Pool) *ProtocolStore {
	return &ProtocolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProtocolStore = (*ProtocolStore)(nil)

// Insert registers a new protocol. Returns ErrDuplicateKey if the address exists.
func (s *ProtocolStore) Insert(ctx context.Context, p *domain.Protocol) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO protocols (address, watershed_block, last_block_collected, created_at)
		VALUES ($1, $2, $3, NOW())
	`, p.Address, p.WatershedBlock, p.LastBlockCollected)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert protocol: %w", err)
	}
	return nil
}

// GetByAddress retrieves a protocol by its program public key.
func (s *ProtocolStore) GetByAddress(ctx context.Context, address string) (*domain.Protocol, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT address, watershed_block, last_block_collected
		FROM protocols
		WHERE address = $1
	`, address)

	var p domain.Protocol
	if err := row.Scan(&p.Address, &p.WatershedBlock, &p.LastBlockCollected); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get protocol: %w", err)
	}
	return &p, nil
}

// List retrieves all registered protocols ordered by address.
func (s *ProtocolStore) List(ctx context.Context) ([]*domain.Protocol, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, watershed_block, last_block_collected
		FROM protocols
		ORDER BY address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list protocols: %w", err)
	}
	defer rows.Close()

	var protocols []*domain.Protocol
	for rows.Next() {
		var p domain.Protocol
		if err := rows.Scan(&p.Address, &p.WatershedBlock, &p.LastBlockCollected); err != nil {
			return nil, fmt.Errorf("scan protocol row: %w", err)
		}
		protocols = append(protocols, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate protocol rows: %w", err)
	}
	return protocols, nil
}

// SetLastBlockCollected advances the forward-scan watermark.
func (s *ProtocolStore) SetLastBlockCollected(ctx context.Context, address string, slot int64) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE protocols
		SET last_block_collected = $2
		WHERE address = $1
	`, address, slot)
	if err != nil {
		return fmt.Errorf("set last block collected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
