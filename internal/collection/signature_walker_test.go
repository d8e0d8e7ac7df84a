package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/ratelimit"
	"solana-lending-index/internal/solana"
	"solana-lending-index/internal/storage"
	"solana-lending-index/internal/storage/memory"
)

const walkerAddr = "So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo"

func newTestWalker(rpc *fakeRPC, txs storage.TransactionStore, wms storage.WatermarkStore, batchSize int) *SignatureWalker {
	return NewSignatureWalker(SignatureWalkerOptions{
		RPC:          rpc,
		Limiter:      ratelimit.New(0),
		Transactions: txs,
		Watermarks:   wms,
		BatchSize:    batchSize,
		StallBackoff: time.Millisecond,
	})
}

func TestSignatureWalker_BoundaryDefersOldestSlot(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	// Newest-first history. A batch of 4 ends mid-slot-1004, so only the
	// 1005 signatures are certainly complete.
	rpc.addHistory(walkerAddr,
		sig("s1", 1005), sig("s2", 1005),
		sig("s3", 1004), sig("s4", 1004), sig("s5", 1004),
		sig("s6", 1003),
	)

	w := newTestWalker(rpc, txs, wms, 4)

	next, done, err := w.step(ctx, walkerAddr, "")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "s2", next)

	// Both 1005 signatures are persisted; nothing from 1004 yet.
	for _, s := range []string{"s1", "s2"} {
		_, err := txs.GetBySignature(ctx, s, walkerAddr)
		assert.NoError(t, err, "signature %s should be committed", s)
	}
	_, err = txs.GetBySignature(ctx, "s3", walkerAddr)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Watermark points at the oldest committed signature.
	wm, err := wms.Get(ctx, walkerAddr, domain.StreamSignature)
	require.NoError(t, err)
	assert.Equal(t, "s2", wm.Signature)
	assert.Equal(t, int64(1005), wm.Slot)
	assert.False(t, wm.Complete)
}

func TestSignatureWalker_ShortBatchCompletesStream(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	rpc.addHistory(walkerAddr, sig("s1", 900), sig("s2", 899))

	w := newTestWalker(rpc, txs, wms, 10)

	_, done, err := w.step(ctx, walkerAddr, "")
	require.NoError(t, err)
	assert.True(t, done)

	// A short batch cannot be truncated, so everything lands.
	for _, s := range []string{"s1", "s2"} {
		_, err := txs.GetBySignature(ctx, s, walkerAddr)
		assert.NoError(t, err)
	}

	wm, err := wms.Get(ctx, walkerAddr, domain.StreamSignature)
	require.NoError(t, err)
	assert.True(t, wm.Complete)
	assert.Equal(t, "s2", wm.Signature)
}

func TestSignatureWalker_SingleSlotFullBatchCommitsNothing(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	rpc.addHistory(walkerAddr,
		sig("s1", 2000), sig("s2", 2000), sig("s3", 2000), sig("s4", 2000),
	)

	w := newTestWalker(rpc, txs, wms, 3)

	next, done, err := w.step(ctx, walkerAddr, "")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "", next, "cursor must not move past an uncommittable batch")

	_, err = txs.GetBySignature(ctx, "s1", walkerAddr)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = wms.Get(ctx, walkerAddr, domain.StreamSignature)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSignatureWalker_EmptyHistoryMarksComplete(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	w := newTestWalker(rpc, txs, wms, 10)

	_, done, err := w.step(ctx, walkerAddr, "anchor")
	require.NoError(t, err)
	assert.True(t, done)

	wm, err := wms.Get(ctx, walkerAddr, domain.StreamSignature)
	require.NoError(t, err)
	assert.True(t, wm.Complete)
}

func TestSignatureWalker_RunWalksFullHistory(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	// Eight signatures across slots 999..996, walked with batch size 3.
	all := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	rpc.addHistory(walkerAddr,
		sig("s1", 999), sig("s2", 999),
		sig("s3", 998), sig("s4", 998),
		sig("s5", 997), sig("s6", 997),
		sig("s7", 996), sig("s8", 996),
	)
	rpc.blocks[1000] = blockWith(1000, []string{walkerAddr}, "anchor")

	w := newTestWalker(rpc, txs, wms, 3)

	proto := &domain.Protocol{Address: walkerAddr, WatershedBlock: 1000}
	require.NoError(t, w.Run(ctx, proto))

	for _, s := range all {
		rec, err := txs.GetBySignature(ctx, s, walkerAddr)
		require.NoError(t, err, "signature %s missing", s)
		assert.Equal(t, domain.ProvenanceSignatureWalk, rec.Provenance)
	}

	wm, err := wms.Get(ctx, walkerAddr, domain.StreamSignature)
	require.NoError(t, err)
	assert.True(t, wm.Complete)
	assert.Equal(t, "s8", wm.Signature)
	assert.Equal(t, int64(996), wm.Slot)

	// A second run is a no-op on a complete stream.
	calls := len(rpc.sigCalls)
	require.NoError(t, w.Run(ctx, proto))
	assert.Equal(t, calls, len(rpc.sigCalls))
}

func TestSignatureWalker_ResumesFromWatermark(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	rpc.addHistory(walkerAddr, sig("s1", 500), sig("s2", 499))
	require.NoError(t, wms.Set(ctx, &domain.Watermark{
		Protocol:  walkerAddr,
		Stream:    domain.StreamSignature,
		Slot:      500,
		Signature: "s1",
	}))

	w := newTestWalker(rpc, txs, wms, 10)

	proto := &domain.Protocol{Address: walkerAddr, WatershedBlock: 600}
	require.NoError(t, w.Run(ctx, proto))

	// Pagination resumed below the watermark signature, never re-reading s1.
	require.NotEmpty(t, rpc.sigCalls)
	assert.Equal(t, "s1", rpc.sigCalls[0])
	_, err := txs.GetBySignature(ctx, "s1", walkerAddr)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = txs.GetBySignature(ctx, "s2", walkerAddr)
	assert.NoError(t, err)
}

func TestSignatureWalker_RunSurvivesTransientRPCFailure(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	rpc.addHistory(walkerAddr, sig("s1", 999), sig("s2", 998))
	require.NoError(t, wms.Set(ctx, &domain.Watermark{
		Protocol:  walkerAddr,
		Stream:    domain.StreamSignature,
		Slot:      1000,
		Signature: "anchor",
	}))

	// The first fetch hits a rate limit. The walker must back off and
	// retry the same cursor instead of giving up on the protocol.
	rpc.sigFailures = []error{
		&solana.TransientRPCError{Method: "getSignaturesForAddress", Err: errors.New("rate limited")},
	}

	w := newTestWalker(rpc, txs, wms, 10)

	proto := &domain.Protocol{Address: walkerAddr, WatershedBlock: 1000}
	require.NoError(t, w.Run(ctx, proto))

	// The failed call and the retry used the same cursor.
	require.Len(t, rpc.sigCalls, 2)
	assert.Equal(t, rpc.sigCalls[0], rpc.sigCalls[1])

	for _, s := range []string{"s1", "s2"} {
		_, err := txs.GetBySignature(ctx, s, walkerAddr)
		assert.NoError(t, err, "signature %s missing after retry", s)
	}

	wm, err := wms.Get(ctx, walkerAddr, domain.StreamSignature)
	require.NoError(t, err)
	assert.True(t, wm.Complete)
}

func TestSignatureWalker_AnchorSkipsEmptyWatershedSlots(t *testing.T) {
	ctx := context.Background()
	rpc := newFakeRPC()
	txs := memory.NewTransactionStore()
	wms := memory.NewWatermarkStore()

	// Watershed slot skipped, next slot empty, anchor found two up.
	rpc.skipped[1000] = true
	rpc.blocks[1001] = blockWith(1001, nil)
	rpc.blocks[1002] = blockWith(1002, []string{walkerAddr}, "anchor")
	rpc.addHistory(walkerAddr, sig("s1", 990))

	w := newTestWalker(rpc, txs, wms, 10)

	proto := &domain.Protocol{Address: walkerAddr, WatershedBlock: 1000}
	require.NoError(t, w.Run(ctx, proto))

	require.NotEmpty(t, rpc.sigCalls)
	assert.Equal(t, "anchor", rpc.sigCalls[0])

	wm, err := wms.Get(ctx, walkerAddr, domain.StreamSignature)
	require.NoError(t, err)
	assert.True(t, wm.Complete)
}

func TestSecondOldestSlot(t *testing.T) {
	tests := []struct {
		name     string
		slots    []int64 // newest first
		boundary int64
		ok       bool
	}{
		{"two slots", []int64{1005, 1004}, 1005, true},
		{"run of oldest", []int64{1005, 1005, 1004, 1004, 1004}, 1005, true},
		{"three slots", []int64{1005, 1004, 1003}, 1004, true},
		{"single slot", []int64{1005, 1005, 1005}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigs := make([]solana.SignatureInfo, len(tt.slots))
			for i, slot := range tt.slots {
				sigs[i] = sig("s", slot)
			}

			boundary, ok := secondOldestSlot(sigs)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.boundary, boundary)
			}
		})
	}
}
