package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/storage"
)

// Default replayer configuration values.
const (
	DefaultReplayBatchLimit = 200
	DefaultReplayInterval   = 5 * time.Second
)

// Replayer drives one protocol's replay loop: pull ordered batches from
// the event source, apply them through the engine, and persist mutated
// entities together with the advanced watermark in a single store
// transaction. Re-running after a crash is therefore harmless: a batch is
// either fully applied and covered by the watermark, or not applied at all.
type Replayer struct {
	protocol string
	source   EventSource
	states   storage.LoanStateStore
	engine   *Engine
	logger   *log.Logger

	batchLimit int
	interval   time.Duration
}

// ReplayerOptions contains configuration for creating a Replayer.
type ReplayerOptions struct {
	Protocol   string
	Source     EventSource
	States     storage.LoanStateStore
	Engine     *Engine
	BatchLimit int           // Default: 200 batches per pass
	Interval   time.Duration // Default: 5s between empty passes
	Logger     *log.Logger
}

// NewReplayer creates a new replay loop for one protocol.
func NewReplayer(opts ReplayerOptions) *Replayer {
	batchLimit := opts.BatchLimit
	if batchLimit <= 0 {
		batchLimit = DefaultReplayBatchLimit
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultReplayInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Replayer{
		protocol:   opts.Protocol,
		source:     opts.Source,
		states:     opts.States,
		engine:     opts.Engine,
		logger:     logger,
		batchLimit: batchLimit,
		interval:   interval,
	}
}

// Bootstrap loads persisted entity snapshots and the replay watermark into
// the engine. A missing watermark means a first run from slot zero.
func (r *Replayer) Bootstrap(ctx context.Context) error {
	lastSlot, err := r.states.LastSlot(ctx, r.protocol)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load replay watermark: %w", err)
		}
		lastSlot = 0
	}

	states, err := r.states.ListByProtocol(ctx, r.protocol)
	if err != nil {
		return fmt.Errorf("load loan states: %w", err)
	}

	r.engine.Load(states, lastSlot)
	r.logger.Printf("Replay for protocol %s resuming from slot %d with %d entities",
		r.protocol, lastSlot, len(states))
	return nil
}

// Run replays continuously until the context is cancelled or the engine
// halts on an ordering violation or decode inconsistency. Halts are
// returned to the caller; they require operator intervention, not retry.
func (r *Replayer) Run(ctx context.Context) error {
	if err := r.Bootstrap(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		applied, err := r.Pass(ctx)
		if err != nil {
			return err
		}

		if applied > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Printf("Replay for protocol %s stopping...", r.protocol)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pass applies one round of batches and persists the result. Returns the
// number of events applied.
func (r *Replayer) Pass(ctx context.Context) (int, error) {
	batches, err := r.source.NextBatches(ctx, r.protocol, r.engine.LastSlot(), r.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch event batches: %w", err)
	}
	if len(batches) == 0 {
		return 0, nil
	}

	applied := 0
	for _, batch := range batches {
		if err := r.engine.ProcessBatch(batch); err != nil {
			r.recordHalt(err)
			return applied, err
		}
		applied += len(batch)
	}

	dirty := r.engine.DirtyStates()
	if err := r.states.SaveBatch(ctx, r.protocol, dirty, r.engine.LastSlot()); err != nil {
		return applied, fmt.Errorf("persist replay batch: %w", err)
	}

	observability.RecordEventsReplayed(applied)
	return applied, nil
}

func (r *Replayer) recordHalt(err error) {
	var ordering *OrderingViolationError
	var decode *DecodeInconsistencyError
	switch {
	case errors.As(err, &ordering):
		observability.RecordReplayHalt(r.protocol, "ordering_violation")
	case errors.As(err, &decode):
		observability.RecordReplayHalt(r.protocol, "decode_inconsistency")
	default:
		observability.RecordReplayHalt(r.protocol, "other")
	}
	r.logger.Printf("Replay halted for protocol %s: %v", r.protocol, err)
}
