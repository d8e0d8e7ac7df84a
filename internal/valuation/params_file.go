package valuation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// ProtocolParameters are one protocol's collateral and debt tables plus
// the per-token dust thresholds the replay engine snaps with.
type ProtocolParameters struct {
	Collateral ParameterSet
	Debt       ParameterSet
	Dust       map[string]decimal.Decimal
}

// fileParameters is the JSON shape of one token's risk parameters.
type fileParameters struct {
	Underlying           string          `json:"underlying"`
	Decimals             int             `json:"decimals"`
	LoanToValue          decimal.Decimal `json:"loan_to_value"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	BorrowFactor         decimal.Decimal `json:"borrow_factor"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	CumulativeBorrowRate decimal.Decimal `json:"cumulative_borrow_rate"`
	Price                decimal.Decimal `json:"price"`
}

type fileProtocol struct {
	Collateral map[string]fileParameters  `json:"collateral"`
	Debt       map[string]fileParameters  `json:"debt"`
	Dust       map[string]decimal.Decimal `json:"dust"`
}

// LoadParameterFile reads per-protocol risk parameter tables from a JSON
// file keyed by protocol address, then token address.
func LoadParameterFile(path string) (map[string]ProtocolParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk parameter file: %w", err)
	}

	var raw map[string]fileProtocol
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse risk parameter file %s: %w", path, err)
	}

	out := make(map[string]ProtocolParameters, len(raw))
	for protocol, tables := range raw {
		out[protocol] = ProtocolParameters{
			Collateral: convertParameterTable(tables.Collateral),
			Debt:       convertParameterTable(tables.Debt),
			Dust:       tables.Dust,
		}
	}
	return out, nil
}

func convertParameterTable(table map[string]fileParameters) ParameterSet {
	set := make(ParameterSet, len(table))
	for token, p := range table {
		set[token] = ReserveRiskParameters{
			Token:                token,
			Underlying:           p.Underlying,
			Decimals:             p.Decimals,
			LoanToValue:          p.LoanToValue,
			LiquidationThreshold: p.LiquidationThreshold,
			BorrowFactor:         p.BorrowFactor,
			ExchangeRate:         p.ExchangeRate,
			CumulativeBorrowRate: p.CumulativeBorrowRate,
			Price:                p.Price,
		}
	}
	return set
}
