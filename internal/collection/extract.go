package collection

import (
	"context"
	"fmt"
	"log"

	"solana-lending-index/internal/decode"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/storage"
)

// extractEvents runs the instruction decoder over a freshly obtained body and
// stores the resulting events. Insertion is idempotent, so re-decoding after
// a crash is harmless. A decode failure is reported but does not stop the
// collection loop; the body stays persisted for a later re-decode.
func extractEvents(ctx context.Context, dec decode.Decoder, events storage.EventStore, protocol, signature string, raw []byte, logger *log.Logger) error {
	if dec == nil || events == nil || len(raw) == 0 {
		return nil
	}

	evts, err := dec.Decode(ctx, protocol, raw)
	if err != nil {
		logger.Printf("Decode failed for %s: %v", signature, err)
		observability.RecordCollectionError("decoder", "decode")
		return nil
	}
	if len(evts) == 0 {
		return nil
	}

	if err := events.InsertBulk(ctx, evts); err != nil {
		return fmt.Errorf("store decoded events for %s: %w", signature, err)
	}
	observability.RecordEventsDecoded(protocol, len(evts))
	return nil
}
