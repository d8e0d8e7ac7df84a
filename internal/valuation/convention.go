package valuation

// CollateralMode selects how collateral market value is risk-weighted.
type CollateralMode int

const (
	// CollateralByLTV multiplies market value by the loan-to-value weight.
	CollateralByLTV CollateralMode = iota

	// CollateralByThreshold multiplies market value by the liquidation
	// threshold (maintenance weight).
	CollateralByThreshold
)

// DebtMode selects how debt market value is risk-weighted.
type DebtMode int

const (
	// DebtUnweighted takes market value as is.
	DebtUnweighted DebtMode = iota

	// DebtByBorrowFactor divides market value by the borrow factor and
	// multiplies by the liquidation threshold.
	DebtByBorrowFactor

	// DebtByWeight multiplies market value by the borrow factor, used
	// where debt carries a maintenance liability weight above one.
	DebtByWeight
)

// Orientation fixes which direction of the health factor means "riskier".
type Orientation int

const (
	// RiskUpward reports risk-adjusted debt over collateral: higher is
	// riskier.
	RiskUpward Orientation = iota

	// RiskDownward reports the reciprocal: lower is riskier.
	RiskDownward

	// RiskMargin reports the normalized margin
	// (collateral - debt) / collateral: lower is riskier, liquidation
	// at or below zero.
	RiskMargin
)

// Convention is one protocol's valuation dialect. Orientation and the
// weighting modes vary across protocols and are parameters, never
// hard-coded into the math.
type Convention struct {
	Collateral  CollateralMode
	Debt        DebtMode
	Orientation Orientation
}

// ConventionFor returns the valuation dialect of a protocol by name,
// defaulting to the Solend shape.
func ConventionFor(name string) Convention {
	switch name {
	case "marginfi":
		return Convention{
			Collateral:  CollateralByThreshold,
			Debt:        DebtByWeight,
			Orientation: RiskMargin,
		}
	case "mango":
		return Convention{
			Collateral:  CollateralByThreshold,
			Debt:        DebtByBorrowFactor,
			Orientation: RiskDownward,
		}
	default: // solend, kamino
		return Convention{
			Collateral:  CollateralByLTV,
			Debt:        DebtUnweighted,
			Orientation: RiskUpward,
		}
	}
}
