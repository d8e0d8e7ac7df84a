package clickhouse

import (
	"context"
	"fmt"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

// HealthHistoryStore implements storage.HealthSnapshotStore using ClickHouse.
// Snapshots accumulate as an append-only time series for analytical queries
// over the full valuation history; the Postgres store keeps only the
// operational view.
type HealthHistoryStore struct {
	conn *Conn
}

// NewHealthHistoryStore creates a new HealthHistoryStore.
func NewHealthHistoryStore(conn *Conn) *HealthHistoryStore {
	return &HealthHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HealthSnapshotStore = (*HealthHistoryStore)(nil)

// InsertBulk appends snapshots in one native batch.
func (s *HealthHistoryStore) InsertBulk(ctx context.Context, snaps []*domain.HealthSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO health_history (
			protocol, account, slot, collateral_usd, risk_adjusted_collateral,
			debt_usd, risk_adjusted_debt, health_factor, std_health_factor
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		if snap == nil || snap.User == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			snap.Protocol, snap.User, uint64(snap.Slot),
			snap.CollateralUSD.String(), snap.RiskAdjustedCollateral.String(),
			snap.DebtUSD.String(), snap.RiskAdjustedDebt.String(),
			snap.HealthFactor, snap.StdHealthFactor,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
