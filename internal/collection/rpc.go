// Package collection gathers the transaction history of monitored lending
// programs: a backward signature walk over each program's past, a forward
// block scan past its watershed, and a backfill loop that attaches raw
// transaction bodies.
package collection

import (
	"context"

	"solana-lending-index/internal/solana"
)

// RPCClient is the subset of the Solana JSON-RPC surface the collectors use.
type RPCClient interface {
	// GetSignaturesForAddress retrieves up to limit signatures for an
	// address, newest first, starting before the given signature when
	// non-empty.
	GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]solana.SignatureInfo, error)

	// GetBlock retrieves a finalized block with full transaction bodies.
	// Returns solana.ErrSlotSkipped when the slot holds no block.
	GetBlock(ctx context.Context, slot int64) (*solana.Block, error)

	// GetTransaction retrieves one transaction by signature, or nil when
	// the node does not know it.
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)

	// GetFinalizedSlot retrieves the latest finalized slot.
	GetFinalizedSlot(ctx context.Context) (int64, error)
}

// SlotSource reports the latest finalized slot without an RPC round trip.
// A zero return means no observation yet and callers poll instead.
type SlotSource interface {
	Latest() int64
}
