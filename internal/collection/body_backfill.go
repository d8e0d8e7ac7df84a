package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-lending-index/internal/decode"
	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/ratelimit"
	"solana-lending-index/internal/solana"
	"solana-lending-index/internal/storage"
)

// Default backfiller configuration values.
const (
	DefaultBackfillBatch    = 500
	DefaultBackfillInterval = 10 * time.Second
)

// BodyBackfiller attaches raw bodies to transaction records discovered by
// the signature walker, which only sees signature metadata. Records are
// grouped by slot so each block is fetched once regardless of how many
// bodies it fills.
type BodyBackfiller struct {
	rpc     RPCClient
	limiter *ratelimit.Limiter
	txs     storage.TransactionStore
	decoder decode.Decoder     // optional; nil skips event extraction
	events  storage.EventStore // required when decoder is set
	logger  *log.Logger

	batchLimit int
	interval   time.Duration
}

// BodyBackfillerOptions contains configuration for creating a BodyBackfiller.
type BodyBackfillerOptions struct {
	RPC          RPCClient
	Limiter      *ratelimit.Limiter
	Transactions storage.TransactionStore
	Decoder      decode.Decoder
	Events       storage.EventStore
	BatchLimit   int           // Default: 500 records per cycle
	Interval     time.Duration // Default: 10s between cycles
	Logger       *log.Logger
}

// NewBodyBackfiller creates a new body backfiller.
func NewBodyBackfiller(opts BodyBackfillerOptions) *BodyBackfiller {
	batchLimit := opts.BatchLimit
	if batchLimit <= 0 {
		batchLimit = DefaultBackfillBatch
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultBackfillInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &BodyBackfiller{
		rpc:        opts.RPC,
		limiter:    opts.Limiter,
		txs:        opts.Transactions,
		decoder:    opts.Decoder,
		events:     opts.Events,
		logger:     logger,
		batchLimit: batchLimit,
		interval:   interval,
	}
}

// Run backfills continuously until the context is cancelled.
func (b *BodyBackfiller) Run(ctx context.Context) error {
	b.logger.Printf("Body backfiller started, batch limit: %d, interval: %v", b.batchLimit, b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if _, err := b.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Printf("Backfill cycle failed: %v", err)
			observability.RecordCollectionError("body_backfill", "cycle")
		}

		select {
		case <-ctx.Done():
			b.logger.Println("Body backfiller stopping...")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle attaches bodies to one batch of bodyless records and reports how
// many were filled.
func (b *BodyBackfiller) Cycle(ctx context.Context) (int, error) {
	refs, err := b.txs.MissingBodies(ctx, b.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("list missing bodies: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	grouped := groupRefsBySlot(refs)

	filled := 0
	for _, group := range grouped {
		n, err := b.fillSlot(ctx, group.slot, group.refs)
		if err != nil {
			return filled, err
		}
		filled += n
	}

	if filled > 0 {
		b.logger.Printf("Backfilled %d transaction bodies", filled)
		observability.RecordBodiesBackfilled(filled)
	}
	return filled, nil
}

// fillSlot fetches one block and attaches bodies to every record of it.
func (b *BodyBackfiller) fillSlot(ctx context.Context, slot int64, refs []ref) (int, error) {
	if err := b.limiter.Acquire(ctx); err != nil {
		return 0, err
	}
	block, err := b.rpc.GetBlock(ctx, slot)
	if err != nil {
		if errors.Is(err, solana.ErrSlotSkipped) {
			// A signature claimed this slot yet this node has no block
			// there, so node views disagree. Fetch each transaction
			// individually instead of the whole block.
			b.logger.Printf("Slot %d skipped but %d records reference it, fetching transactions directly",
				slot, len(refs))
			observability.RecordCollectionError("body_backfill", "slot_skipped")
			return b.fillDirect(ctx, refs)
		}
		return 0, fmt.Errorf("fetch block %d: %w", slot, err)
	}

	bodies := make(map[string][]byte, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx.Signature != "" {
			bodies[tx.Signature] = tx.Raw
		}
	}

	filled := 0
	for _, r := range refs {
		raw, ok := bodies[r.signature]
		if !ok {
			b.logger.Printf("Signature %s not found in block %d", r.signature, slot)
			observability.RecordCollectionError("body_backfill", "signature_missing")
			continue
		}
		if err := b.txs.AttachBody(ctx, r.signature, r.protocol, raw); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return filled, fmt.Errorf("attach body for %s: %w", r.signature, err)
		}
		filled++

		if err := extractEvents(ctx, b.decoder, b.events, r.protocol, r.signature, raw, b.logger); err != nil {
			return filled, err
		}
	}
	return filled, nil
}

// fillDirect attaches bodies one getTransaction call at a time, for
// records whose block cannot be fetched as a whole.
func (b *BodyBackfiller) fillDirect(ctx context.Context, refs []ref) (int, error) {
	filled := 0
	for _, r := range refs {
		if err := b.limiter.Acquire(ctx); err != nil {
			return filled, err
		}
		tx, err := b.rpc.GetTransaction(ctx, r.signature)
		if err != nil {
			return filled, fmt.Errorf("fetch transaction %s: %w", r.signature, err)
		}
		if tx == nil || len(tx.Raw) == 0 {
			b.logger.Printf("Transaction %s unknown to the node, leaving for later", r.signature)
			observability.RecordCollectionError("body_backfill", "transaction_missing")
			continue
		}
		if err := b.txs.AttachBody(ctx, r.signature, r.protocol, tx.Raw); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return filled, fmt.Errorf("attach body for %s: %w", r.signature, err)
		}
		filled++

		if err := extractEvents(ctx, b.decoder, b.events, r.protocol, r.signature, tx.Raw, b.logger); err != nil {
			return filled, err
		}
	}
	return filled, nil
}

type ref struct {
	signature string
	protocol  string
}

type slotGroup struct {
	slot int64
	refs []ref
}

// groupRefsBySlot preserves the oldest-first order of the input.
func groupRefsBySlot(refs []*domain.TransactionRef) []slotGroup {
	var groups []slotGroup
	index := make(map[int64]int)

	for _, r := range refs {
		i, ok := index[r.Slot]
		if !ok {
			i = len(groups)
			index[r.Slot] = i
			groups = append(groups, slotGroup{slot: r.Slot})
		}
		groups[i].refs = append(groups[i].refs, ref{signature: r.Signature, protocol: r.Protocol})
	}
	return groups
}
