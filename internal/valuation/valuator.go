package valuation

import (
	"github.com/shopspring/decimal"

	"solana-lending-index/internal/domain"
)

// Health factor renderings for values a decimal cannot carry.
const (
	HealthUndefined = "undefined"
	HealthPosInf    = "+Inf"
	HealthNegInf    = "-Inf"
)

// Valuator prices loan entities for one protocol under its convention.
type Valuator struct {
	protocol   string
	convention Convention
	collateral ParameterSet
	debt       ParameterSet
}

// NewValuator creates a valuator with separate collateral and debt
// parameter tables, mirroring asset and liability weights differing for
// the same mint.
func NewValuator(protocol string, convention Convention, collateral, debt ParameterSet) *Valuator {
	return &Valuator{
		protocol:   protocol,
		convention: convention,
		collateral: collateral,
		debt:       debt,
	}
}

// Value computes the health snapshot of one loan state. A held token
// without parameters fails the whole entity; partial sums would understate
// risk silently.
func (v *Valuator) Value(state *domain.LoanState) (*domain.HealthSnapshot, error) {
	collateralUSD := decimal.Zero
	riskAdjColl := decimal.Zero
	for token, amount := range state.Collateral {
		if amount.IsZero() {
			continue
		}
		p, err := v.collateral.Lookup(token)
		if err != nil {
			return nil, err
		}
		mv := marketValue(amount, p, p.ExchangeRate)
		collateralUSD = collateralUSD.Add(mv)
		riskAdjColl = riskAdjColl.Add(v.adjustCollateral(mv, p))
	}

	debtUSD := decimal.Zero
	riskAdjDebt := decimal.Zero
	for token, amount := range state.Debt {
		if amount.IsZero() {
			continue
		}
		p, err := v.debt.Lookup(token)
		if err != nil {
			return nil, err
		}
		mv := marketValue(amount, p, p.CumulativeBorrowRate)
		debtUSD = debtUSD.Add(mv)
		riskAdjDebt = riskAdjDebt.Add(v.adjustDebt(mv, p))
	}

	return &domain.HealthSnapshot{
		Protocol:               state.Protocol,
		User:                   state.User,
		Slot:                   state.Slot,
		CollateralUSD:          collateralUSD,
		RiskAdjustedCollateral: riskAdjColl,
		DebtUSD:                debtUSD,
		RiskAdjustedDebt:       riskAdjDebt,
		HealthFactor:           healthFactor(v.convention.Orientation, riskAdjColl, riskAdjDebt),
		StdHealthFactor:        stdHealthFactor(riskAdjColl, riskAdjDebt),
	}, nil
}

// marketValue converts a raw token amount to USD:
// amount / 10^decimals * scalar * price.
func marketValue(amount decimal.Decimal, p ReserveRiskParameters, scalar decimal.Decimal) decimal.Decimal {
	whole := amount.Shift(int32(-p.Decimals))
	if !scalar.IsZero() {
		whole = whole.Mul(scalar)
	}
	return whole.Mul(p.Price)
}

func (v *Valuator) adjustCollateral(mv decimal.Decimal, p ReserveRiskParameters) decimal.Decimal {
	switch v.convention.Collateral {
	case CollateralByThreshold:
		return mv.Mul(p.LiquidationThreshold)
	default:
		return mv.Mul(p.LoanToValue)
	}
}

func (v *Valuator) adjustDebt(mv decimal.Decimal, p ReserveRiskParameters) decimal.Decimal {
	switch v.convention.Debt {
	case DebtByBorrowFactor:
		if p.BorrowFactor.IsZero() {
			return mv
		}
		return mv.Div(p.BorrowFactor).Mul(p.LiquidationThreshold)
	case DebtByWeight:
		return mv.Mul(p.BorrowFactor)
	default:
		return mv
	}
}

// healthFactor renders the protocol-native health factor. Zero-side edge
// cases follow the orientation: with no collateral and no debt the value
// is undefined; a zero denominator alone renders as the appropriate
// infinity or extreme.
func healthFactor(o Orientation, coll, debt decimal.Decimal) string {
	collZero := coll.IsZero()
	debtZero := debt.IsZero()

	if collZero && debtZero {
		return HealthUndefined
	}

	switch o {
	case RiskDownward:
		// collateral / debt, lower is riskier
		if debtZero {
			return HealthPosInf
		}
		return coll.Div(debt).String()
	case RiskMargin:
		// (collateral - debt) / collateral, lower is riskier
		if collZero {
			return HealthNegInf
		}
		return coll.Sub(debt).Div(coll).String()
	default:
		// debt / collateral, higher is riskier
		if collZero {
			return HealthPosInf
		}
		return debt.Div(coll).String()
	}
}

// stdHealthFactor is the orientation-independent companion metric:
// risk-adjusted collateral over risk-adjusted debt.
func stdHealthFactor(coll, debt decimal.Decimal) string {
	if coll.IsZero() && debt.IsZero() {
		return HealthUndefined
	}
	if debt.IsZero() {
		return HealthPosInf
	}
	return coll.Div(debt).String()
}
