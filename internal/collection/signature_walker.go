package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/ratelimit"
	"solana-lending-index/internal/solana"
	"solana-lending-index/internal/storage"
)

// Default walker configuration values.
const (
	DefaultBatchSize    = 1000
	DefaultStallBackoff = 5 * time.Second
)

// SignatureWalker crawls one protocol's transaction history backward from
// its watershed block using paginated getSignaturesForAddress calls.
//
// A batch is newest-first and its far end can cut a slot's transaction set
// in half, so only slots certainly complete in the batch may be committed:
// with the batch's distinct slots sorted ascending, the second-oldest slot
// is the safe boundary. Every signature at or above the boundary is
// persisted and the watermark advances to the oldest persisted signature;
// the oldest slot is re-fetched in the next batch. A full batch spanning a
// single slot commits nothing and is re-fetched after a backoff. A short
// batch means history is exhausted: everything is committed and the stream
// is marked complete.
type SignatureWalker struct {
	rpc        RPCClient
	limiter    *ratelimit.Limiter
	txs        storage.TransactionStore
	watermarks storage.WatermarkStore
	logger     *log.Logger

	batchSize    int
	stallBackoff time.Duration
}

// SignatureWalkerOptions contains configuration for creating a SignatureWalker.
type SignatureWalkerOptions struct {
	RPC          RPCClient
	Limiter      *ratelimit.Limiter
	Transactions storage.TransactionStore
	Watermarks   storage.WatermarkStore
	BatchSize    int           // Default: 1000
	StallBackoff time.Duration // Default: 5s - wait before re-fetching a single-slot batch
	Logger       *log.Logger
}

// NewSignatureWalker creates a new backward signature walker.
func NewSignatureWalker(opts SignatureWalkerOptions) *SignatureWalker {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	stallBackoff := opts.StallBackoff
	if stallBackoff <= 0 {
		stallBackoff = DefaultStallBackoff
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &SignatureWalker{
		rpc:          opts.RPC,
		limiter:      opts.Limiter,
		txs:          opts.Transactions,
		watermarks:   opts.Watermarks,
		logger:       logger,
		batchSize:    batchSize,
		stallBackoff: stallBackoff,
	}
}

// Run walks the protocol's history backward until it is exhausted or the
// context is cancelled. Transient RPC failures are absorbed here: the
// walker logs them, backs off and retries the same cursor, so rate limits
// and node hiccups never take the process down. Safe to call again after a
// crash: it resumes from the persisted watermark and returns nil
// immediately once the stream has been marked complete.
func (w *SignatureWalker) Run(ctx context.Context, protocol *domain.Protocol) error {
	var before string
	for {
		var done bool
		var err error
		before, done, err = w.resume(ctx, protocol)
		if err != nil {
			if retryErr := w.retryTransient(ctx, protocol.Address, err); retryErr != nil {
				return retryErr
			}
			continue
		}
		if done {
			w.logger.Printf("Historical walk already complete for protocol %s", protocol.Address)
			return nil
		}
		break
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next, done, err := w.step(ctx, protocol.Address, before)
		if err != nil {
			if retryErr := w.retryTransient(ctx, protocol.Address, err); retryErr != nil {
				return retryErr
			}
			continue
		}
		if done {
			w.logger.Printf("Historical walk complete for protocol %s", protocol.Address)
			return nil
		}
		before = next
	}
}

// retryTransient decides whether err is worth retrying. Transient RPC
// errors are logged and absorbed after a backoff; anything else comes back
// unchanged and ends the walk.
func (w *SignatureWalker) retryTransient(ctx context.Context, address string, err error) error {
	if !solana.IsTransient(err) {
		return err
	}
	w.logger.Printf("Transient RPC failure walking protocol %s, retrying in %s: %v",
		address, w.stallBackoff, err)
	observability.RecordCollectionError("signature_walker", "transient_rpc")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.stallBackoff):
	}
	return nil
}

// resume loads the watermark, bootstrapping the start signature from the
// watershed block on first run.
func (w *SignatureWalker) resume(ctx context.Context, protocol *domain.Protocol) (before string, done bool, err error) {
	wm, err := w.watermarks.Get(ctx, protocol.Address, domain.StreamSignature)
	if err == nil {
		return wm.Signature, wm.Complete, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", false, fmt.Errorf("load signature watermark: %w", err)
	}

	before, err = w.watershedSignature(ctx, protocol)
	if err != nil {
		return "", false, err
	}
	return before, false, nil
}

// watershedSignature finds the first transaction signature of the watershed
// block. The signature does not have to belong to the protocol; it only
// anchors the backward pagination. Skipped or empty slots fall through to
// the next slot up, which still bounds the protocol's entire pre-watershed
// history.
func (w *SignatureWalker) watershedSignature(ctx context.Context, protocol *domain.Protocol) (string, error) {
	const maxProbes = 32

	for slot := protocol.WatershedBlock; slot < protocol.WatershedBlock+maxProbes; slot++ {
		if err := w.limiter.Acquire(ctx); err != nil {
			return "", err
		}
		block, err := w.rpc.GetBlock(ctx, slot)
		if err != nil {
			if errors.Is(err, solana.ErrSlotSkipped) {
				continue
			}
			return "", fmt.Errorf("fetch watershed block %d: %w", slot, err)
		}
		if len(block.Transactions) == 0 {
			continue
		}
		sig := block.Transactions[0].Signature
		w.logger.Printf("Anchored walk for protocol %s at signature %s (watershed block %d)",
			protocol.Address, sig, slot)
		return sig, nil
	}

	return "", fmt.Errorf("no transactions near watershed block %d for protocol %s",
		protocol.WatershedBlock, protocol.Address)
}

// step fetches one batch and commits its safe prefix. It returns the next
// pagination cursor, or done=true when history is exhausted.
func (w *SignatureWalker) step(ctx context.Context, address, before string) (next string, done bool, err error) {
	if err := w.limiter.Acquire(ctx); err != nil {
		return "", false, err
	}
	sigs, err := w.rpc.GetSignaturesForAddress(ctx, address, w.batchSize, before)
	if err != nil {
		return "", false, fmt.Errorf("fetch signatures for %s: %w", address, err)
	}

	if len(sigs) == 0 {
		if err := w.markComplete(ctx, address, before); err != nil {
			return "", false, err
		}
		return "", true, nil
	}

	full := len(sigs) >= w.batchSize
	if !full {
		// History exhausted: the oldest slot cannot be truncated.
		if err := w.commit(ctx, address, sigs, true); err != nil {
			return "", false, err
		}
		return "", true, nil
	}

	boundary, ok := secondOldestSlot(sigs)
	if !ok {
		// Whole batch in one slot: nothing is certainly complete.
		w.logger.Printf("Full signature batch for protocol %s spans only slot %d, retrying",
			address, sigs[0].Slot)
		observability.RecordBoundaryStall()
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(w.stallBackoff):
		}
		return before, false, nil
	}

	var committed []solana.SignatureInfo
	for _, s := range sigs {
		if s.Slot < boundary {
			break
		}
		committed = append(committed, s)
	}
	if err := w.commit(ctx, address, committed, false); err != nil {
		return "", false, err
	}
	return committed[len(committed)-1].Signature, false, nil
}

// secondOldestSlot returns the second-oldest distinct slot of a newest-first
// batch, or ok=false when the batch spans a single slot.
func secondOldestSlot(sigs []solana.SignatureInfo) (int64, bool) {
	oldest := sigs[len(sigs)-1].Slot
	// Slots are non-increasing; scan back to front for the first change.
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Slot != oldest {
			return sigs[i].Slot, true
		}
	}
	return 0, false
}

// commit persists the signatures then advances the watermark, in that order,
// so a crash between the two re-processes at most one batch.
func (w *SignatureWalker) commit(ctx context.Context, address string, sigs []solana.SignatureInfo, terminal bool) error {
	for _, s := range sigs {
		rec := &domain.TransactionRecord{
			Signature:  s.Signature,
			Protocol:   address,
			Slot:       s.Slot,
			Provenance: domain.ProvenanceSignatureWalk,
			ErrBody:    s.Err,
			Memo:       s.Memo,
		}
		if s.BlockTime != nil {
			rec.BlockTime = *s.BlockTime
		}
		if err := w.txs.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("upsert signature record %s: %w", s.Signature, err)
		}
		observability.RecordTransactionRecorded(address, string(domain.ProvenanceSignatureWalk))
	}

	oldest := sigs[len(sigs)-1]
	wm := &domain.Watermark{
		Protocol:  address,
		Stream:    domain.StreamSignature,
		Slot:      oldest.Slot,
		Signature: oldest.Signature,
		Complete:  terminal,
	}
	if err := w.watermarks.Set(ctx, wm); err != nil {
		return fmt.Errorf("advance signature watermark: %w", err)
	}

	observability.RecordSignaturesCollected(address, len(sigs))
	return nil
}

// markComplete flags the stream terminal without moving its position.
func (w *SignatureWalker) markComplete(ctx context.Context, address, lastSignature string) error {
	wm, err := w.watermarks.Get(ctx, address, domain.StreamSignature)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load signature watermark: %w", err)
		}
		wm = &domain.Watermark{Protocol: address, Stream: domain.StreamSignature, Signature: lastSignature}
	}
	wm.Complete = true
	if err := w.watermarks.Set(ctx, wm); err != nil {
		return fmt.Errorf("mark signature stream complete: %w", err)
	}
	return nil
}
