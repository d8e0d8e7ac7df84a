// Package decode defines the boundary to the instruction decoder that turns
// raw transaction bodies into normalized protocol events.
package decode

import (
	"context"

	"solana-lending-index/internal/domain"
)

// Decoder parses one raw encoded transaction body into the protocol events
// it contains, grouped by instruction and carrying the ordering fields the
// replay engine sorts on.
//
// Implementations must be deterministic and pure: the same body always
// yields the same events, so replaying history is reproducible. A body
// with no instructions touching the protocol yields an empty slice, not an
// error.
type Decoder interface {
	Decode(ctx context.Context, protocol string, raw []byte) ([]*domain.ProtocolEvent, error)
}
