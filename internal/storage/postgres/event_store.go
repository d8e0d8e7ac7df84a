package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// EventStore is a PostgreSQL implementation of storage.EventStore.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new PostgreSQL decoded-event store.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk stores decoded events atomically, skipping duplicates.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.ProtocolEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO lending_events (
			protocol, slot, tx_signature, transaction_index, instruction_index,
			event_index, kind, leg, account, liquidator, token, amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (protocol, tx_signature, instruction_index, event_index) DO NOTHING
	`

	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			e.Protocol,
			e.Slot,
			e.TxSignature,
			e.TransactionIndex,
			e.InstructionIndex,
			e.EventIndex,
			e.Kind,
			e.Leg,
			e.User,
			e.Liquidator,
			e.Token,
			e.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("insert lending event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// BatchesAfter returns instruction batches with slot > afterSlot, ordered by
// chain position. Events within a batch share one
// (tx_signature, instruction_index) and are ordered by event index. The
// limit is stretched to the end of the slot it lands in: a caller that
// persists a slot-granular watermark after the last batch must never
// strand the rest of that slot.
func (s *EventStore) BatchesAfter(ctx context.Context, protocol string, afterSlot int64, limit int) ([][]*domain.ProtocolEvent, error) {
	if protocol == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		WITH ranked AS (
			SELECT protocol, slot, tx_signature, transaction_index, instruction_index,
			       event_index, kind, leg, account, liquidator, token, amount,
			       DENSE_RANK() OVER (
			           ORDER BY slot, transaction_index, instruction_index
			       ) AS batch_rank
			FROM lending_events
			WHERE protocol = $1 AND slot > $2
		)
		SELECT protocol, slot, tx_signature, transaction_index, instruction_index,
		       event_index, kind, leg, account, liquidator, token, amount
		FROM ranked
	`
	args := []any{protocol, afterSlot}
	if limit > 0 {
		query += ` WHERE slot <= (SELECT COALESCE(MAX(slot), 0) FROM ranked WHERE batch_rank <= $3)`
		args = append(args, limit)
	}
	query += ` ORDER BY slot, transaction_index, instruction_index, event_index`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event batches: %w", err)
	}
	defer rows.Close()

	var batches [][]*domain.ProtocolEvent
	var current []*domain.ProtocolEvent
	for rows.Next() {
		var e domain.ProtocolEvent
		var amount string
		err := rows.Scan(&e.Protocol, &e.Slot, &e.TxSignature, &e.TransactionIndex,
			&e.InstructionIndex, &e.EventIndex, &e.Kind, &e.Leg, &e.User,
			&e.Liquidator, &e.Token, &amount)
		if err != nil {
			return nil, fmt.Errorf("scan lending event row: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse event amount: %w", err)
		}

		if len(current) > 0 {
			head := current[0]
			if head.TxSignature != e.TxSignature || head.InstructionIndex != e.InstructionIndex {
				batches = append(batches, current)
				current = nil
			}
		}
		current = append(current, &e)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lending event rows: %w", err)
	}
	return batches, nil
}
