package postgres

import (
	"context"
	"fmt"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// WatermarkStore is a PostgreSQL implementation of storage.WatermarkStore.
// One row per (protocol, stream).
type WatermarkStore struct {
	pool *Pool
}

// NewWatermarkStore creates a new PostgreSQL watermark store.
func NewWatermarkStore(pool *Pool) *WatermarkStore {
	return &WatermarkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get retrieves the watermark for (protocol, stream).
func (s *WatermarkStore) Get(ctx context.Context, protocol string, stream domain.Stream) (*domain.Watermark, error) {
	if protocol == "" || stream == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT protocol, stream, slot, signature, complete
		FROM watermarks
		WHERE protocol = $1 AND stream = $2
	`, protocol, stream)

	var w domain.Watermark
	if err := row.Scan(&w.Protocol, &w.Stream, &w.Slot, &w.Signature, &w.Complete); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	return &w, nil
}

// Set upserts the watermark. Handles initial insert and subsequent advances.
func (s *WatermarkStore) Set(ctx context.Context, w *domain.Watermark) error {
	if w == nil || w.Protocol == "" || w.Stream == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO watermarks (protocol, stream, slot, signature, complete, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (protocol, stream) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    complete = EXCLUDED.complete,
		    updated_at = NOW()
	`, w.Protocol, w.Stream, w.Slot, w.Signature, w.Complete)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}
