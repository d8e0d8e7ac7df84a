package domain

import "github.com/shopspring/decimal"

// LoanState is the persisted snapshot of one user's position within one
// protocol: raw token holdings on both sides of the balance sheet.
type LoanState struct {
	Protocol   string
	User       string
	Collateral map[string]decimal.Decimal
	Debt       map[string]decimal.Decimal
	Slot       int64 // slot of the last event applied to this entity
}

// HealthSnapshot is the valuation output for one loan entity at one slot.
// Health factors are rendered as strings so that infinity and undefined
// values survive storage unchanged.
type HealthSnapshot struct {
	Protocol               string
	User                   string
	Slot                   int64
	CollateralUSD          decimal.Decimal
	RiskAdjustedCollateral decimal.Decimal
	DebtUSD                decimal.Decimal
	RiskAdjustedDebt       decimal.Decimal
	HealthFactor           string // protocol-native orientation
	StdHealthFactor        string // risk-adjusted collateral / risk-adjusted debt
}
