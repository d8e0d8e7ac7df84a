package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-lending-index/internal/domain"
)

const (
	testProtocol = "So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo"
	tokenUSDC    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	tokenSOL     = "So11111111111111111111111111111111111111112"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testParams() (ParameterSet, ParameterSet) {
	collateral := ParameterSet{
		tokenSOL: {
			Token:                tokenSOL,
			Decimals:             9,
			LoanToValue:          dec("0.8"),
			LiquidationThreshold: dec("0.85"),
			ExchangeRate:         dec("1"),
			Price:                dec("100"),
		},
	}
	debt := ParameterSet{
		tokenUSDC: {
			Token:                tokenUSDC,
			Decimals:             6,
			LiquidationThreshold: dec("0.9"),
			BorrowFactor:         dec("1.2"),
			CumulativeBorrowRate: dec("1"),
			Price:                dec("1"),
		},
	}
	return collateral, debt
}

func state(collateral, debt map[string]decimal.Decimal) *domain.LoanState {
	return &domain.LoanState{
		Protocol:   testProtocol,
		User:       "alice",
		Collateral: collateral,
		Debt:       debt,
		Slot:       500,
	}
}

func TestValuator_SolendShape(t *testing.T) {
	collateral, debt := testParams()
	v := NewValuator(testProtocol, ConventionFor("solend"), collateral, debt)

	// 5 SOL at $100 against 200 USDC.
	snap, err := v.Value(state(
		map[string]decimal.Decimal{tokenSOL: dec("5000000000")},
		map[string]decimal.Decimal{tokenUSDC: dec("200000000")},
	))
	require.NoError(t, err)

	assert.True(t, snap.CollateralUSD.Equal(dec("500")), "collateral USD = %s", snap.CollateralUSD)
	assert.True(t, snap.RiskAdjustedCollateral.Equal(dec("400")), "LTV-weighted collateral = %s", snap.RiskAdjustedCollateral)
	assert.True(t, snap.DebtUSD.Equal(dec("200")))
	assert.True(t, snap.RiskAdjustedDebt.Equal(dec("200")), "solend debt is unweighted")

	// debt / collateral, higher riskier.
	assert.Equal(t, dec("0.5").String(), snap.HealthFactor)
	assert.Equal(t, dec("2").String(), snap.StdHealthFactor)
	assert.Equal(t, int64(500), snap.Slot)
}

func TestValuator_ScalarsFoldIntoMarketValue(t *testing.T) {
	collateral, debt := testParams()
	p := collateral[tokenSOL]
	p.ExchangeRate = dec("1.1")
	collateral[tokenSOL] = p

	d := debt[tokenUSDC]
	d.CumulativeBorrowRate = dec("1.05")
	debt[tokenUSDC] = d

	v := NewValuator(testProtocol, ConventionFor("solend"), collateral, debt)

	snap, err := v.Value(state(
		map[string]decimal.Decimal{tokenSOL: dec("1000000000")},
		map[string]decimal.Decimal{tokenUSDC: dec("100000000")},
	))
	require.NoError(t, err)

	// 1 SOL * 1.1 * $100; 100 USDC * 1.05 * $1.
	assert.True(t, snap.CollateralUSD.Equal(dec("110")), "collateral USD = %s", snap.CollateralUSD)
	assert.True(t, snap.DebtUSD.Equal(dec("105")), "debt USD = %s", snap.DebtUSD)
}

func TestValuator_MissingParameterFailsEntity(t *testing.T) {
	collateral, debt := testParams()
	v := NewValuator(testProtocol, ConventionFor("solend"), collateral, debt)

	_, err := v.Value(state(
		map[string]decimal.Decimal{"UnknownMint": dec("1")},
		nil,
	))

	var missing *MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "UnknownMint", missing.Token)
}

func TestValuator_ZeroBalancesSkipLookup(t *testing.T) {
	collateral, debt := testParams()
	v := NewValuator(testProtocol, ConventionFor("solend"), collateral, debt)

	// A zero balance of an unlisted token must not fail valuation.
	snap, err := v.Value(state(
		map[string]decimal.Decimal{"UnknownMint": decimal.Zero, tokenSOL: dec("1000000000")},
		nil,
	))
	require.NoError(t, err)
	assert.True(t, snap.CollateralUSD.Equal(dec("100")))
}

func TestHealthFactor_EdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		orientation Orientation
		coll, debt  string
		want        string
	}{
		{"upward both zero", RiskUpward, "0", "0", HealthUndefined},
		{"upward no collateral", RiskUpward, "0", "100", HealthPosInf},
		{"upward no debt", RiskUpward, "100", "0", "0"},
		{"upward ratio", RiskUpward, "200", "100", "0.5"},
		{"downward both zero", RiskDownward, "0", "0", HealthUndefined},
		{"downward no debt", RiskDownward, "100", "0", HealthPosInf},
		{"downward ratio", RiskDownward, "200", "100", "2"},
		{"margin both zero", RiskMargin, "0", "0", HealthUndefined},
		{"margin no collateral", RiskMargin, "0", "100", HealthNegInf},
		{"margin ratio", RiskMargin, "200", "50", "0.75"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := healthFactor(tt.orientation, dec(tt.coll), dec(tt.debt))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStdHealthFactor_EdgeCases(t *testing.T) {
	assert.Equal(t, HealthUndefined, stdHealthFactor(decimal.Zero, decimal.Zero))
	assert.Equal(t, HealthPosInf, stdHealthFactor(dec("100"), decimal.Zero))
	assert.Equal(t, "2", stdHealthFactor(dec("200"), dec("100")))
}

func TestConventionFor(t *testing.T) {
	assert.Equal(t, RiskUpward, ConventionFor("solend").Orientation)
	assert.Equal(t, RiskUpward, ConventionFor("kamino").Orientation)
	assert.Equal(t, RiskMargin, ConventionFor("marginfi").Orientation)
	assert.Equal(t, RiskDownward, ConventionFor("mango").Orientation)
	assert.Equal(t, RiskUpward, ConventionFor("").Orientation, "unknown protocols take the solend shape")
}

func TestValuator_MarginfiConvention(t *testing.T) {
	collateral, debt := testParams()
	v := NewValuator(testProtocol, ConventionFor("marginfi"), collateral, debt)

	snap, err := v.Value(state(
		map[string]decimal.Decimal{tokenSOL: dec("5000000000")},
		map[string]decimal.Decimal{tokenUSDC: dec("200000000")},
	))
	require.NoError(t, err)

	// Threshold-weighted collateral, weight-multiplied debt,
	// margin orientation: (425 - 240) / 425.
	assert.True(t, snap.RiskAdjustedCollateral.Equal(dec("425")))
	assert.True(t, snap.RiskAdjustedDebt.Equal(dec("240")))
	assert.Equal(t, dec("185").Div(dec("425")).String(), snap.HealthFactor)
}
