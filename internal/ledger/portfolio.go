// Package ledger rebuilds per-user lending positions by replaying decoded
// protocol events in chain order.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DustTable maps token addresses to the magnitude below which a balance is
// treated as zero. Tokens without an entry get no dust suppression.
type DustTable map[string]decimal.Decimal

// Epsilon returns the dust threshold for a token, zero when unconfigured.
func (t DustTable) Epsilon(token string) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	return t[token]
}

// Portfolio is a token->amount holding on one side of a loan entity's
// balance sheet. Every mutation snaps balances with magnitude below the
// token's dust threshold to exactly zero, so accumulated rounding noise
// from compounding rate scalars never survives as a phantom position.
type Portfolio struct {
	balances map[string]decimal.Decimal
	dust     DustTable
}

// NewPortfolio creates an empty portfolio with the given dust thresholds.
func NewPortfolio(dust DustTable) *Portfolio {
	return &Portfolio{balances: make(map[string]decimal.Decimal), dust: dust}
}

// Amount returns the balance of a token, zero when absent.
func (p *Portfolio) Amount(token string) decimal.Decimal {
	return p.balances[token]
}

// Increase adds delta (which may be negative) to a token's balance.
func (p *Portfolio) Increase(token string, delta decimal.Decimal) {
	p.Set(token, p.balances[token].Add(delta))
}

// Set replaces a token's balance.
func (p *Portfolio) Set(token string, value decimal.Decimal) {
	if value.Abs().LessThan(p.dust.Epsilon(token)) {
		value = decimal.Zero
	}
	p.balances[token] = value
}

// Tokens returns the held token addresses in sorted order.
func (p *Portfolio) Tokens() []string {
	tokens := make([]string, 0, len(p.balances))
	for token := range p.balances {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// IsEmpty reports whether every balance is zero.
func (p *Portfolio) IsEmpty() bool {
	for _, v := range p.balances {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// ToMap copies the balances into a plain map for persistence.
func (p *Portfolio) ToMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p.balances))
	for token, v := range p.balances {
		out[token] = v
	}
	return out
}

// fromMap loads persisted balances without re-applying dust suppression.
func fromMap(m map[string]decimal.Decimal, dust DustTable) *Portfolio {
	p := NewPortfolio(dust)
	for token, v := range m {
		p.balances[token] = v
	}
	return p
}
