package solana

import (
	"errors"
	"fmt"
)

// TransientRPCError wraps a failure that is expected to clear on retry:
// network errors, timeouts, upstream rate limiting. Collectors retry these
// with backoff and never surface them as fatal.
type TransientRPCError struct {
	Method string
	Err    error
}

func (e *TransientRPCError) Error() string {
	return fmt.Sprintf("transient rpc failure in %s: %v", e.Method, e.Err)
}

func (e *TransientRPCError) Unwrap() error { return e.Err }

// PermanentRPCError wraps a failure that retrying cannot fix, such as an
// unknown address or a malformed request. The affected unit of work is
// skipped and logged.
type PermanentRPCError struct {
	Method string
	Code   int
	Err    error
}

func (e *PermanentRPCError) Error() string {
	return fmt.Sprintf("permanent rpc failure in %s (code %d): %v", e.Method, e.Code, e.Err)
}

func (e *PermanentRPCError) Unwrap() error { return e.Err }

// ErrSlotSkipped is returned by GetBlock when the requested slot was skipped
// by the cluster and will never contain a block. The scanner treats such
// slots as scanned and empty.
var ErrSlotSkipped = errors.New("slot was skipped or missing")

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientRPCError
	return errors.As(err, &t)
}

// JSON-RPC error codes returned by Solana nodes for slots without blocks.
const (
	codeSlotSkipped         = -32007
	codeLongTermStorageSlot = -32009
	codeBlockNotAvailable   = -32004
	codeNodeBehind          = -32005
)
