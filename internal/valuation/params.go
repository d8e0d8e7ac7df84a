// Package valuation prices replayed loan entities and computes their
// health factors using decimal arithmetic throughout.
package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReserveRiskParameters are the per-token inputs to valuation. Collateral
// and debt sides of the same mint carry different weights, so each side
// keeps its own parameter table.
type ReserveRiskParameters struct {
	Token      string // mint address the portfolios are keyed by
	Underlying string // oracle-priced underlying mint

	Decimals int

	// LoanToValue weights collateral borrowing power; LiquidationThreshold
	// and BorrowFactor weight the liquidation-eligibility side.
	LoanToValue          decimal.Decimal
	LiquidationThreshold decimal.Decimal
	BorrowFactor         decimal.Decimal

	// ExchangeRate converts a yield-bearing wrapper to its underlying;
	// CumulativeBorrowRate folds accrued interest into raw debt shares.
	// Both default to one for plain tokens.
	ExchangeRate         decimal.Decimal
	CumulativeBorrowRate decimal.Decimal

	// Price is USD per whole underlying token.
	Price decimal.Decimal
}

// ParameterSet maps token addresses to their risk parameters.
type ParameterSet map[string]ReserveRiskParameters

// Lookup returns the parameters for a token or a MissingParameterError.
func (s ParameterSet) Lookup(token string) (ReserveRiskParameters, error) {
	p, ok := s[token]
	if !ok {
		return ReserveRiskParameters{}, &MissingParameterError{Token: token}
	}
	return p, nil
}

// MissingParameterError reports a held token without risk parameters.
// The affected entity cannot be valued; others proceed.
type MissingParameterError struct {
	Token string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("no risk parameters for token %s", e.Token)
}
