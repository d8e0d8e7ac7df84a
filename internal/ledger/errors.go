package ledger

import "fmt"

// OrderingViolationError reports an event batch arriving below the replay
// watermark. It signals a broken upstream query, so the engine halts
// without mutating anything rather than re-sorting.
type OrderingViolationError struct {
	Protocol  string
	BatchSlot int64
	LastSlot  int64
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("ordering violation for protocol %s: batch slot %d < last slot %d",
		e.Protocol, e.BatchSlot, e.LastSlot)
}

// DecodeInconsistencyError reports an event batch whose shape the handler
// cannot interpret, such as a liquidation missing its repay leg. Replay for
// the protocol halts; guessing would corrupt the ledger irrecoverably.
type DecodeInconsistencyError struct {
	Protocol    string
	TxSignature string
	Kind        string
	Reason      string
}

func (e *DecodeInconsistencyError) Error() string {
	return fmt.Sprintf("decode inconsistency for protocol %s tx %s kind %s: %s",
		e.Protocol, e.TxSignature, e.Kind, e.Reason)
}
