package domain

// Stream names an independent resumable traversal over chain history.
type Stream string

const (
	// StreamSignature is the backward historical signature walk.
	// Its position is a transaction signature.
	StreamSignature Stream = "signature"

	// StreamBlock is the forward block scan. Its position is a slot.
	StreamBlock Stream = "block"

	// StreamReplay is the decoded-event replay. Its position is a slot.
	StreamReplay Stream = "replay"
)

// Watermark is the last durably processed position of one (protocol, stream).
// It is advanced only after the data it covers has been persisted, so a crash
// between the two re-processes at most one unit of work.
type Watermark struct {
	Protocol  string
	Stream    Stream
	Slot      int64
	Signature string // set for StreamSignature
	Complete  bool   // terminal: the stream has exhausted its history
}
