package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-lending-index/internal/decode"
	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/ratelimit"
	"solana-lending-index/internal/solana"
	"solana-lending-index/internal/storage"
)

// Default scanner configuration values.
const (
	DefaultScanWindow   = 10
	DefaultScanInterval = 2 * time.Second
)

// AddressProvider supplies the currently configured protocol address set.
// It is re-read every cycle so address changes apply without restart.
type AddressProvider interface {
	ProtocolAddresses() []string
}

// BlockScanner crawls forward from each protocol's watershed, fetching a
// window of consecutive finalized blocks per cycle and recording every
// transaction whose account list names a registered protocol. Watermarks
// advance to the highest contiguously scanned block, never past a block
// that could not be fetched.
type BlockScanner struct {
	rpc       RPCClient
	limiter   *ratelimit.Limiter
	registry  *Registry
	addresses AddressProvider
	protocols storage.ProtocolStore
	txs       storage.TransactionStore
	decoder   decode.Decoder     // optional; nil skips event extraction
	events    storage.EventStore // required when decoder is set
	slots     SlotSource         // optional; nil or zero falls back to polling
	logger    *log.Logger

	window   int
	interval time.Duration
}

// BlockScannerOptions contains configuration for creating a BlockScanner.
type BlockScannerOptions struct {
	RPC          RPCClient
	Limiter      *ratelimit.Limiter
	Registry     *Registry
	Addresses    AddressProvider
	Protocols    storage.ProtocolStore
	Transactions storage.TransactionStore
	Decoder      decode.Decoder
	Events       storage.EventStore
	SlotSource   SlotSource
	Window       int           // Default: 10 blocks per cycle
	Interval     time.Duration // Default: 2s between cycles
	Logger       *log.Logger
}

// NewBlockScanner creates a new forward block scanner.
func NewBlockScanner(opts BlockScannerOptions) *BlockScanner {
	window := opts.Window
	if window <= 0 {
		window = DefaultScanWindow
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultScanInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &BlockScanner{
		rpc:       opts.RPC,
		limiter:   opts.Limiter,
		registry:  opts.Registry,
		addresses: opts.Addresses,
		protocols: opts.Protocols,
		txs:       opts.Transactions,
		decoder:   opts.Decoder,
		events:    opts.Events,
		slots:     opts.SlotSource,
		logger:    logger,
		window:    window,
		interval:  interval,
	}
}

// Run scans continuously until the context is cancelled.
func (s *BlockScanner) Run(ctx context.Context) error {
	s.logger.Printf("Block scanner started, window: %d, interval: %v", s.window, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("Scan cycle failed: %v", err)
			observability.RecordCollectionError("block_scanner", "cycle")
		}

		select {
		case <-ctx.Done():
			s.logger.Println("Block scanner stopping...")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// blockResult is one fetched slot of the window. A skipped slot holds no
// block and counts as scanned.
type blockResult struct {
	slot    int64
	block   *solana.Block
	skipped bool
	err     error
}

// Cycle performs one scan pass over the shared window.
func (s *BlockScanner) Cycle(ctx context.Context) error {
	protos, err := s.registry.Sync(ctx, s.addresses.ProtocolAddresses())
	if err != nil {
		return fmt.Errorf("sync protocol registry: %w", err)
	}
	if len(protos) == 0 {
		return nil
	}

	latest, err := s.latestFinalized(ctx)
	if err != nil {
		return fmt.Errorf("resolve finalized slot: %w", err)
	}
	observability.UpdateHighestFinalizedSlot(latest)

	// Earliest outstanding block across all protocols bounds the window.
	start := protos[0].NextBlock()
	for _, p := range protos[1:] {
		if nb := p.NextBlock(); nb < start {
			start = nb
		}
	}
	end := start + int64(s.window) - 1
	if end > latest {
		end = latest
	}
	if start > end {
		return nil
	}

	results := s.fetchWindow(ctx, start, end)

	// The watermark may not advance past an unfetchable block.
	scannedTo := end
	for slot := start; slot <= end; slot++ {
		res := results[slot-start]
		if res.err != nil {
			s.logger.Printf("Block %d unavailable, retrying next cycle: %v", slot, res.err)
			observability.RecordCollectionError("block_scanner", "block_fetch")
			scannedTo = slot - 1
			break
		}
	}
	if scannedTo < start {
		return nil
	}

	for slot := start; slot <= scannedTo; slot++ {
		res := results[slot-start]
		if res.skipped || res.block == nil {
			continue
		}
		if err := s.recordRelevant(ctx, protos, res.block); err != nil {
			return err
		}
	}

	for _, p := range protos {
		if p.NextBlock() > scannedTo {
			continue
		}
		if err := s.protocols.SetLastBlockCollected(ctx, p.Address, scannedTo); err != nil {
			return fmt.Errorf("advance scan watermark for %s: %w", p.Address, err)
		}
		observability.UpdateForwardScanPosition(p.Address, scannedTo)
		observability.RecordBlockScanned(p.Address)
	}

	return nil
}

// fetchWindow retrieves [start, end] concurrently, one result per slot.
func (s *BlockScanner) fetchWindow(ctx context.Context, start, end int64) []blockResult {
	results := make([]blockResult, end-start+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.window)

	var mu sync.Mutex
	for slot := start; slot <= end; slot++ {
		slot := slot
		g.Go(func() error {
			if err := s.limiter.Acquire(gctx); err != nil {
				mu.Lock()
				results[slot-start] = blockResult{slot: slot, err: err}
				mu.Unlock()
				return nil
			}
			block, err := s.rpc.GetBlock(gctx, slot)

			res := blockResult{slot: slot, block: block}
			if errors.Is(err, solana.ErrSlotSkipped) {
				res.skipped = true
			} else if err != nil {
				res.err = err
			}

			mu.Lock()
			results[slot-start] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

// recordRelevant upserts every block transaction touching a protocol that
// has reached this slot.
func (s *BlockScanner) recordRelevant(ctx context.Context, protos []*domain.Protocol, block *solana.Block) error {
	for _, tx := range block.Transactions {
		if tx.Signature == "" {
			continue
		}
		for _, p := range protos {
			if !covers(p, block.Slot) {
				continue
			}
			if !touchesAddress(tx.AccountKeys, p.Address) {
				continue
			}

			rec := &domain.TransactionRecord{
				Signature:  tx.Signature,
				Protocol:   p.Address,
				Slot:       tx.Slot,
				BlockTime:  tx.BlockTime,
				Provenance: domain.ProvenanceBlockScan,
				RawBody:    tx.Raw,
			}
			if err := s.txs.Upsert(ctx, rec); err != nil {
				return fmt.Errorf("upsert block transaction %s: %w", tx.Signature, err)
			}
			observability.RecordTransactionRecorded(p.Address, string(domain.ProvenanceBlockScan))

			if err := extractEvents(ctx, s.decoder, s.events, p.Address, tx.Signature, tx.Raw, s.logger); err != nil {
				return err
			}
		}
	}
	return nil
}

// covers reports whether the slot falls in the protocol's outstanding range.
func covers(p *domain.Protocol, slot int64) bool {
	return slot >= p.NextBlock()
}

func touchesAddress(keys []string, address string) bool {
	for _, k := range keys {
		if k == address {
			return true
		}
	}
	return false
}

// latestFinalized prefers the WebSocket tracker, falling back to a
// rate-limited getSlot poll before the first notification.
func (s *BlockScanner) latestFinalized(ctx context.Context) (int64, error) {
	if s.slots != nil {
		if slot := s.slots.Latest(); slot > 0 {
			return slot, nil
		}
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return 0, err
	}
	return s.rpc.GetFinalizedSlot(ctx)
}
