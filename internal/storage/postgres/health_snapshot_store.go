package postgres

import (
	"context"
	"fmt"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// HealthSnapshotStore is a PostgreSQL implementation of storage.HealthSnapshotStore.
// Append-only: each valuation run inserts fresh rows.
type HealthSnapshotStore struct {
	pool *Pool
}

// NewHealthSnapshotStore creates a new PostgreSQL health snapshot store.
func NewHealthSnapshotStore(pool *Pool) *HealthSnapshotStore {
	return &HealthSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HealthSnapshotStore = (*HealthSnapshotStore)(nil)

// InsertBulk appends snapshots atomically.
func (s *HealthSnapshotStore) InsertBulk(ctx context.Context, snaps []*domain.HealthSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO health_snapshots (
			protocol, account, slot, collateral_usd, risk_adjusted_collateral,
			debt_usd, risk_adjusted_debt, health_factor, std_health_factor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`

	for _, snap := range snaps {
		if snap == nil || snap.User == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			snap.Protocol,
			snap.User,
			snap.Slot,
			snap.CollateralUSD.String(),
			snap.RiskAdjustedCollateral.String(),
			snap.DebtUSD.String(),
			snap.RiskAdjustedDebt.String(),
			snap.HealthFactor,
			snap.StdHealthFactor,
		)
		if err != nil {
			return fmt.Errorf("insert health snapshot in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
