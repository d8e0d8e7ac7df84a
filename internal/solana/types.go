package solana

import "encoding/json"

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       *string // JSON-encoded transaction error, nil on success
	Memo      *string
}

// Transaction is an encoded chain transaction with block metadata.
type Transaction struct {
	Signature   string
	Slot        int64
	BlockTime   int64
	AccountKeys []string
	Raw         json.RawMessage // full encoded body as returned by the node
}

// Block is the transaction set of one slot.
type Block struct {
	Slot         int64
	BlockTime    *int64
	Transactions []Transaction
}
