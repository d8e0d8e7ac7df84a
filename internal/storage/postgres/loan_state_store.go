package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// LoanStateStore is a PostgreSQL implementation of storage.LoanStateStore.
// Portfolios are stored as JSONB token->amount maps; the replay watermark
// lives in the watermarks table under the replay stream and is advanced in
// the same transaction as the states it covers.
type LoanStateStore struct {
	pool *Pool
}

// NewLoanStateStore creates a new PostgreSQL loan state store.
func NewLoanStateStore(pool *Pool) *LoanStateStore {
	return &LoanStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LoanStateStore = (*LoanStateStore)(nil)

// ListByProtocol retrieves all loan states for a protocol ordered by account.
func (s *LoanStateStore) ListByProtocol(ctx context.Context, protocol string) ([]*domain.LoanState, error) {
	if protocol == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT protocol, account, collateral, debt, slot
		FROM loan_states
		WHERE protocol = $1
		ORDER BY account ASC
	`, protocol)
	if err != nil {
		return nil, fmt.Errorf("list loan states: %w", err)
	}
	defer rows.Close()

	var states []*domain.LoanState
	for rows.Next() {
		var st domain.LoanState
		var collateral, debt []byte
		if err := rows.Scan(&st.Protocol, &st.User, &collateral, &debt, &st.Slot); err != nil {
			return nil, fmt.Errorf("scan loan state row: %w", err)
		}
		if err := json.Unmarshal(collateral, &st.Collateral); err != nil {
			return nil, fmt.Errorf("decode collateral portfolio: %w", err)
		}
		if err := json.Unmarshal(debt, &st.Debt); err != nil {
			return nil, fmt.Errorf("decode debt portfolio: %w", err)
		}
		states = append(states, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loan state rows: %w", err)
	}
	return states, nil
}

// LastSlot returns the protocol's replay watermark.
func (s *LoanStateStore) LastSlot(ctx context.Context, protocol string) (int64, error) {
	if protocol == "" {
		return 0, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT slot
		FROM watermarks
		WHERE protocol = $1 AND stream = $2
	`, protocol, domain.StreamReplay)

	var slot int64
	if err := row.Scan(&slot); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get replay watermark: %w", err)
	}
	return slot, nil
}

// SaveBatch persists the states and advances the replay watermark in one
// transaction, so a crash can never separate a mutation from its watermark.
func (s *LoanStateStore) SaveBatch(ctx context.Context, protocol string, states []*domain.LoanState, lastSlot int64) error {
	if protocol == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO loan_states (protocol, account, collateral, debt, slot, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (protocol, account) DO UPDATE
		SET collateral = EXCLUDED.collateral,
		    debt = EXCLUDED.debt,
		    slot = EXCLUDED.slot,
		    updated_at = NOW()
	`

	for _, st := range states {
		if st == nil || st.User == "" {
			return storage.ErrInvalidInput
		}
		collateral, err := encodePortfolio(st.Collateral)
		if err != nil {
			return fmt.Errorf("encode collateral portfolio: %w", err)
		}
		debt, err := encodePortfolio(st.Debt)
		if err != nil {
			return fmt.Errorf("encode debt portfolio: %w", err)
		}
		if _, err := tx.Exec(ctx, query, protocol, st.User, collateral, debt, st.Slot); err != nil {
			return fmt.Errorf("upsert loan state: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO watermarks (protocol, stream, slot, signature, complete, updated_at)
		VALUES ($1, $2, $3, '', FALSE, NOW())
		ON CONFLICT (protocol, stream) DO UPDATE
		SET slot = EXCLUDED.slot,
		    updated_at = NOW()
	`, protocol, domain.StreamReplay, lastSlot)
	if err != nil {
		return fmt.Errorf("advance replay watermark: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func encodePortfolio(m map[string]decimal.Decimal) ([]byte, error) {
	if m == nil {
		m = map[string]decimal.Decimal{}
	}
	return json.Marshal(m)
}
