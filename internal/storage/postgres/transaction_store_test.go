package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/storage"
)

func TestTransactionStore_UpsertIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	rec := &domain.TransactionRecord{
		Signature:  "sigA",
		Protocol:   testProtocolAddr,
		Slot:       1001,
		BlockTime:  1700000000,
		Provenance: domain.ProvenanceSignatureWalk,
		Memo:       ptr("hello"),
	}
	require.NoError(t, store.Upsert(ctx, rec))
	require.NoError(t, store.Upsert(ctx, rec))

	got, err := store.GetBySignature(ctx, "sigA", testProtocolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), got.Slot)
	assert.Equal(t, domain.ProvenanceSignatureWalk, got.Provenance)
	assert.Nil(t, got.RawBody)
	require.NotNil(t, got.Memo)
	assert.Equal(t, "hello", *got.Memo)
}

func TestTransactionStore_BlockScanUpgradesProvenance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	require.NoError(t, store.Upsert(ctx, &domain.TransactionRecord{
		Signature:  "sigA",
		Protocol:   testProtocolAddr,
		Slot:       1001,
		BlockTime:  1700000000,
		Provenance: domain.ProvenanceSignatureWalk,
		ErrBody:    ptr(`{"InstructionError":[0,"Custom"]}`),
	}))

	// The forward scanner sees the same signature with a full body.
	require.NoError(t, store.Upsert(ctx, &domain.TransactionRecord{
		Signature:  "sigA",
		Protocol:   testProtocolAddr,
		Slot:       1001,
		BlockTime:  1700000000,
		Provenance: domain.ProvenanceBlockScan,
		RawBody:    []byte(`{"tx":"body"}`),
	}))

	got, err := store.GetBySignature(ctx, "sigA", testProtocolAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceBlockScan, got.Provenance)
	assert.Equal(t, []byte(`{"tx":"body"}`), got.RawBody)
	require.NotNil(t, got.ErrBody, "the error payload from the walk sighting survives")

	// A later walk sighting never downgrades or strips the body.
	require.NoError(t, store.Upsert(ctx, &domain.TransactionRecord{
		Signature:  "sigA",
		Protocol:   testProtocolAddr,
		Slot:       1001,
		BlockTime:  1700000000,
		Provenance: domain.ProvenanceSignatureWalk,
	}))

	got, err = store.GetBySignature(ctx, "sigA", testProtocolAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceBlockScan, got.Provenance)
	assert.Equal(t, []byte(`{"tx":"body"}`), got.RawBody)
}

func TestTransactionStore_SameSignatureTwoProtocols(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	for _, protocol := range []string{testProtocolAddr, "other-protocol"} {
		require.NoError(t, store.Upsert(ctx, &domain.TransactionRecord{
			Signature:  "sigA",
			Protocol:   protocol,
			Slot:       1001,
			BlockTime:  1700000000,
			Provenance: domain.ProvenanceSignatureWalk,
		}))
	}

	a, err := store.GetBySignature(ctx, "sigA", testProtocolAddr)
	require.NoError(t, err)
	b, err := store.GetBySignature(ctx, "sigA", "other-protocol")
	require.NoError(t, err)
	assert.Equal(t, testProtocolAddr, a.Protocol)
	assert.Equal(t, "other-protocol", b.Protocol)
}

func TestTransactionStore_MissingBodiesOldestFirst(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	insert := func(sig string, slot int64, raw []byte) {
		require.NoError(t, store.Upsert(ctx, &domain.TransactionRecord{
			Signature:  sig,
			Protocol:   testProtocolAddr,
			Slot:       slot,
			BlockTime:  1700000000,
			Provenance: domain.ProvenanceSignatureWalk,
			RawBody:    raw,
		}))
	}
	insert("sigNew", 1003, nil)
	insert("sigOld", 1001, nil)
	insert("sigDone", 1002, []byte(`{}`))

	refs, err := store.MissingBodies(ctx, 0)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "sigOld", refs[0].Signature)
	assert.Equal(t, int64(1001), refs[0].Slot)
	assert.Equal(t, "sigNew", refs[1].Signature)

	limited, err := store.MissingBodies(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "sigOld", limited[0].Signature)
}

func TestTransactionStore_AttachBody(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	require.NoError(t, store.Upsert(ctx, &domain.TransactionRecord{
		Signature:  "sigA",
		Protocol:   testProtocolAddr,
		Slot:       1001,
		BlockTime:  1700000000,
		Provenance: domain.ProvenanceSignatureWalk,
	}))

	require.NoError(t, store.AttachBody(ctx, "sigA", testProtocolAddr, []byte(`{"tx":1}`)))

	got, err := store.GetBySignature(ctx, "sigA", testProtocolAddr)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"tx":1}`), got.RawBody)

	refs, err := store.MissingBodies(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, refs)

	err = store.AttachBody(ctx, "ghost", testProtocolAddr, []byte(`{}`))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
