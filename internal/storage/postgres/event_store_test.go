package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-lending-index/internal/domain"
)

func pgEvent(slot int64, txIdx int, sig string, instrIdx, evtIdx int) *domain.ProtocolEvent {
	return &domain.ProtocolEvent{
		Protocol:         testProtocolAddr,
		Slot:             slot,
		TxSignature:      sig,
		TransactionIndex: txIdx,
		InstructionIndex: instrIdx,
		EventIndex:       evtIdx,
		Kind:             domain.KindDeposit,
		Leg:              domain.LegCollateral,
		User:             "alice",
		Token:            "mint",
		Amount:           decimal.NewFromInt(100),
	}
}

func TestEventStore_InsertBulkDeduplicates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	e := pgEvent(100, 0, "sigA", 0, 0)
	require.NoError(t, store.InsertBulk(ctx, []*domain.ProtocolEvent{e}))

	// Re-decoding the same transaction is a no-op, even with a changed amount.
	dup := pgEvent(100, 0, "sigA", 0, 0)
	dup.Amount = decimal.NewFromInt(999)
	require.NoError(t, store.InsertBulk(ctx, []*domain.ProtocolEvent{dup}))

	batches, err := store.BatchesAfter(ctx, testProtocolAddr, 0, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.True(t, batches[0][0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestEventStore_BatchesAfterGroupsAndOrders(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	// Insert out of chain order; the query restores it.
	require.NoError(t, store.InsertBulk(ctx, []*domain.ProtocolEvent{
		pgEvent(102, 0, "sigD", 0, 0),
		pgEvent(101, 1, "sigC", 0, 0),
		pgEvent(101, 0, "sigB", 2, 1),
		pgEvent(101, 0, "sigB", 2, 0),
		pgEvent(100, 0, "sigA", 0, 0),
	}))

	batches, err := store.BatchesAfter(ctx, testProtocolAddr, 0, 0)
	require.NoError(t, err)
	require.Len(t, batches, 4)

	assert.Equal(t, "sigA", batches[0][0].TxSignature)
	assert.Equal(t, "sigB", batches[1][0].TxSignature)
	assert.Equal(t, "sigC", batches[2][0].TxSignature)
	assert.Equal(t, "sigD", batches[3][0].TxSignature)

	// Legs of one instruction stay together in event order.
	require.Len(t, batches[1], 2)
	assert.Equal(t, 0, batches[1][0].EventIndex)
	assert.Equal(t, 1, batches[1][1].EventIndex)
}

func TestEventStore_BatchesAfterRespectsSlotAndLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.ProtocolEvent{
		pgEvent(100, 0, "sigA", 0, 0),
		pgEvent(101, 0, "sigB", 0, 0),
		pgEvent(102, 0, "sigC", 0, 0),
		pgEvent(103, 0, "sigD", 0, 0),
	}))

	// afterSlot is exclusive.
	batches, err := store.BatchesAfter(ctx, testProtocolAddr, 101, 0)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "sigC", batches[0][0].TxSignature)

	// limit counts batches, not events.
	limited, err := store.BatchesAfter(ctx, testProtocolAddr, 100, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "sigB", limited[0][0].TxSignature)
	assert.Equal(t, "sigC", limited[1][0].TxSignature)
}

func TestEventStore_BatchesAfterLimitNeverSplitsSlot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.ProtocolEvent{
		pgEvent(100, 0, "sigA", 0, 0),
		pgEvent(100, 1, "sigB", 0, 0),
		pgEvent(101, 0, "sigC", 0, 0),
	}))

	// The limit lands between sigA and sigB, which share slot 100. A
	// caller persisting a slot-granular watermark must receive the whole
	// slot.
	batches, err := store.BatchesAfter(ctx, testProtocolAddr, 0, 1)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "sigA", batches[0][0].TxSignature)
	assert.Equal(t, "sigB", batches[1][0].TxSignature)
}

func TestEventStore_OtherProtocolInvisible(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	e := pgEvent(100, 0, "sigA", 0, 0)
	e.Protocol = "other-protocol"
	require.NoError(t, store.InsertBulk(ctx, []*domain.ProtocolEvent{e}))

	batches, err := store.BatchesAfter(ctx, testProtocolAddr, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
