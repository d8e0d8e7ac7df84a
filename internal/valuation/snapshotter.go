package valuation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/storage"
)

// DefaultSnapshotInterval is the default pause between valuation rounds.
const DefaultSnapshotInterval = 1 * time.Minute

// Snapshotter periodically values every loan entity of one protocol and
// writes the health snapshots to each configured sink, typically the
// operational Postgres table plus the ClickHouse history.
type Snapshotter struct {
	protocol string
	valuator *Valuator
	states   storage.LoanStateStore
	sinks    []storage.HealthSnapshotStore
	logger   *log.Logger
	interval time.Duration
}

// SnapshotterOptions contains configuration for creating a Snapshotter.
type SnapshotterOptions struct {
	Protocol string
	Valuator *Valuator
	States   storage.LoanStateStore
	Sinks    []storage.HealthSnapshotStore
	Interval time.Duration // Default: 1m
	Logger   *log.Logger
}

// NewSnapshotter creates a new valuation snapshot loop.
func NewSnapshotter(opts SnapshotterOptions) *Snapshotter {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Snapshotter{
		protocol: opts.Protocol,
		valuator: opts.Valuator,
		states:   opts.States,
		sinks:    opts.Sinks,
		logger:   logger,
		interval: interval,
	}
}

// Run values continuously until the context is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	s.logger.Printf("Valuation snapshotter started for protocol %s, interval: %v", s.protocol, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("Valuation cycle failed for protocol %s: %v", s.protocol, err)
		}

		select {
		case <-ctx.Done():
			s.logger.Printf("Valuation snapshotter stopping for protocol %s...", s.protocol)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle values every entity once and reports how many snapshots were
// written. Entities missing risk parameters are skipped with a log line so
// one unlisted token cannot stall the rest of the protocol.
func (s *Snapshotter) Cycle(ctx context.Context) (int, error) {
	states, err := s.states.ListByProtocol(ctx, s.protocol)
	if err != nil {
		return 0, fmt.Errorf("list loan states: %w", err)
	}
	if len(states) == 0 {
		return 0, nil
	}

	var snaps []*domain.HealthSnapshot
	for _, state := range states {
		snap, err := s.valuator.Value(state)
		if err != nil {
			var missing *MissingParameterError
			if errors.As(err, &missing) {
				s.logger.Printf("Skipping valuation of user %s: %v", state.User, err)
				continue
			}
			return 0, fmt.Errorf("value user %s: %w", state.User, err)
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	for _, sink := range s.sinks {
		if err := sink.InsertBulk(ctx, snaps); err != nil {
			return 0, fmt.Errorf("write health snapshots: %w", err)
		}
	}

	observability.RecordSnapshotsWritten(len(snaps))
	return len(snaps), nil
}
