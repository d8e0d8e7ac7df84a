package solana

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the byte length of an ed25519 public key.
const PubkeyLength = 32

// IsValidPubkey reports whether s decodes to a 32-byte base58 key.
func IsValidPubkey(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == PubkeyLength
}

// IsOnCurve reports whether the key is a valid ed25519 curve point.
// Wallet keys are on-curve; program-derived addresses such as obligation
// accounts are deliberately off-curve.
func IsOnCurve(pubkey string) bool {
	raw, err := base58.Decode(pubkey)
	if err != nil || len(raw) != PubkeyLength {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
