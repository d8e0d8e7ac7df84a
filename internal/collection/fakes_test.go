package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/solana"
)

// fakeRPC serves a scripted chain view: a newest-first signature history
// per address and a block set keyed by slot.
type fakeRPC struct {
	mu           sync.Mutex
	history      map[string][]solana.SignatureInfo
	blocks       map[int64]*solana.Block
	transactions map[string]*solana.Transaction
	skipped      map[int64]bool
	failing      map[int64]error
	sigFailures  []error // consumed one per GetSignaturesForAddress call
	finalized    int64

	sigCalls   []string // "before" cursors in call order
	blockCalls []int64
	txCalls    []string
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		history:      make(map[string][]solana.SignatureInfo),
		blocks:       make(map[int64]*solana.Block),
		transactions: make(map[string]*solana.Transaction),
		skipped:      make(map[int64]bool),
		failing:      make(map[int64]error),
	}
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, address string, limit int, before string) ([]solana.SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigCalls = append(f.sigCalls, before)

	if len(f.sigFailures) > 0 {
		err := f.sigFailures[0]
		f.sigFailures = f.sigFailures[1:]
		if err != nil {
			return nil, err
		}
	}

	// An unknown cursor (the watershed anchor belongs to another account)
	// is newer than the whole history.
	hist := f.history[address]
	start := 0
	for i, s := range hist {
		if s.Signature == before {
			start = i + 1
			break
		}
	}

	end := start + limit
	if end > len(hist) {
		end = len(hist)
	}
	out := make([]solana.SignatureInfo, end-start)
	copy(out, hist[start:end])
	return out, nil
}

func (f *fakeRPC) GetBlock(_ context.Context, slot int64) (*solana.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockCalls = append(f.blockCalls, slot)

	if err, ok := f.failing[slot]; ok {
		return nil, err
	}
	if f.skipped[slot] {
		return nil, solana.ErrSlotSkipped
	}
	block, ok := f.blocks[slot]
	if !ok {
		return nil, fmt.Errorf("no block scripted for slot %d", slot)
	}
	return block, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls = append(f.txCalls, signature)
	return f.transactions[signature], nil
}

func (f *fakeRPC) GetFinalizedSlot(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized, nil
}

// addHistory appends signatures, newest first, to an address's history.
func (f *fakeRPC) addHistory(address string, sigs ...solana.SignatureInfo) {
	f.history[address] = append(f.history[address], sigs...)
}

func (f *fakeRPC) blockCallCount(slot int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.blockCalls {
		if s == slot {
			n++
		}
	}
	return n
}

// fakeSlots is a static SlotSource.
type fakeSlots struct {
	slot int64
}

func (f *fakeSlots) Latest() int64 {
	return f.slot
}

// sig builds a SignatureInfo for tests.
func sig(signature string, slot int64) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: signature, Slot: slot}
}

// fakeDecoder turns every body produced by blockWith into one deposit event,
// or fails every call when err is set.
type fakeDecoder struct {
	err   error
	calls int
}

func (f *fakeDecoder) Decode(_ context.Context, protocol string, raw []byte) ([]*domain.ProtocolEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var body struct {
		Slot       int64    `json:"slot"`
		Signatures []string `json:"signatures"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Signatures) == 0 {
		return nil, fmt.Errorf("unscripted body")
	}

	return []*domain.ProtocolEvent{{
		Protocol:    protocol,
		Slot:        body.Slot,
		TxSignature: body.Signatures[0],
		Kind:        domain.KindDeposit,
		Leg:         domain.LegCollateral,
		User:        "user",
		Token:       "mint",
		Amount:      decimal.NewFromInt(1),
	}}, nil
}

// blockWith builds a block whose transactions all touch the given keys.
func blockWith(slot int64, keys []string, signatures ...string) *solana.Block {
	b := &solana.Block{Slot: slot}
	for _, s := range signatures {
		b.Transactions = append(b.Transactions, solana.Transaction{
			Signature:   s,
			Slot:        slot,
			AccountKeys: keys,
			Raw:         []byte(fmt.Sprintf(`{"slot":%d,"signatures":["%s"]}`, slot, s)),
		})
	}
	return b
}
