package domain

// Provenance records which collection path discovered a transaction.
type Provenance string

const (
	// ProvenanceSignatureWalk marks records discovered by the backward
	// signature walker. These start without a raw body.
	ProvenanceSignatureWalk Provenance = "signature"

	// ProvenanceBlockScan marks records discovered by the forward block
	// scanner, which always carries the full raw body.
	ProvenanceBlockScan Provenance = "block"
)

// TransactionRecord is one chain transaction as seen by one protocol.
// The same signature may appear once per protocol it touches.
type TransactionRecord struct {
	Signature  string
	Protocol   string // program public key this record belongs to
	Slot       int64
	BlockTime  int64
	Provenance Provenance
	RawBody    []byte  // encoded transaction body, nil until fetched
	ErrBody    *string // transaction error payload, if the transaction failed
	Memo       *string
}

// TransactionRef identifies a transaction record lacking its raw body.
type TransactionRef struct {
	Signature string
	Protocol  string
	Slot      int64
}
