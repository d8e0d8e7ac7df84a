package ledger

import (
	"github.com/shopspring/decimal"

	"solana-lending-index/internal/domain"
)

// Handler applies one instruction batch of a single event kind to the
// entities it names. Handlers mutate through the engine's entity accessor
// so every touched user lands in the dirty set.
type Handler func(eng *Engine, batch []*domain.ProtocolEvent) error

// HandlerMap resolves an event kind to its handler for one protocol.
// Kinds absent from the map are decode inconsistencies for that protocol.
type HandlerMap map[domain.EventKind]Handler

// SolendHandlers covers the full Solend instruction set.
func SolendHandlers() HandlerMap {
	return HandlerMap{
		domain.KindDeposit:   handleDeposit,
		domain.KindWithdraw:  handleWithdraw,
		domain.KindBorrow:    handleBorrow,
		domain.KindRepay:     handleRepay,
		domain.KindLiquidate: liquidationHandler(true),
	}
}

// KaminoHandlers mirrors Solend's obligation model.
func KaminoHandlers() HandlerMap {
	return HandlerMap{
		domain.KindDeposit:   handleDeposit,
		domain.KindWithdraw:  handleWithdraw,
		domain.KindBorrow:    handleBorrow,
		domain.KindRepay:     handleRepay,
		domain.KindLiquidate: liquidationHandler(true),
	}
}

// MarginfiHandlers covers the lending-account instruction set.
func MarginfiHandlers() HandlerMap {
	return HandlerMap{
		domain.KindDeposit:   handleDeposit,
		domain.KindWithdraw:  handleWithdraw,
		domain.KindBorrow:    handleBorrow,
		domain.KindRepay:     handleRepay,
		domain.KindLiquidate: liquidationHandler(true),
	}
}

// MangoHandlers tolerates liquidations without a collateral seizure leg;
// early Mango liquidation instructions settled only the debt side.
func MangoHandlers() HandlerMap {
	return HandlerMap{
		domain.KindDeposit:   handleDeposit,
		domain.KindWithdraw:  handleWithdraw,
		domain.KindBorrow:    handleBorrow,
		domain.KindRepay:     handleRepay,
		domain.KindLiquidate: liquidationHandler(false),
	}
}

// HandlersFor resolves a protocol name to its handler map, defaulting to
// the Solend shape for unknown protocols.
func HandlersFor(name string) HandlerMap {
	switch name {
	case "kamino":
		return KaminoHandlers()
	case "marginfi":
		return MarginfiHandlers()
	case "mango":
		return MangoHandlers()
	default:
		return SolendHandlers()
	}
}

func handleDeposit(eng *Engine, batch []*domain.ProtocolEvent) error {
	legs := legsOf(batch, domain.LegCollateral)
	if len(legs) == 0 {
		return eng.inconsistency(batch, "deposit batch has no collateral leg")
	}
	for _, e := range legs {
		eng.entity(e.User).Collateral.Increase(e.Token, e.Amount)
	}
	return nil
}

func handleWithdraw(eng *Engine, batch []*domain.ProtocolEvent) error {
	legs := legsOf(batch, domain.LegCollateral)
	if len(legs) == 0 {
		return eng.inconsistency(batch, "withdraw batch has no collateral leg")
	}
	for _, e := range legs {
		eng.entity(e.User).Collateral.Increase(e.Token, e.Amount.Neg())
	}
	return nil
}

func handleBorrow(eng *Engine, batch []*domain.ProtocolEvent) error {
	// Borrow batches may carry a fee leg alongside the principal; both add
	// to the borrower's debt.
	legs := append(legsOf(batch, domain.LegDebt), legsOf(batch, domain.LegFee)...)
	if len(legs) == 0 {
		return eng.inconsistency(batch, "borrow batch has no debt leg")
	}
	for _, e := range legs {
		eng.entity(e.User).Debt.Increase(e.Token, e.Amount)
	}
	return nil
}

func handleRepay(eng *Engine, batch []*domain.ProtocolEvent) error {
	legs := legsOf(batch, domain.LegDebt)
	if len(legs) == 0 {
		return eng.inconsistency(batch, "repay batch has no debt leg")
	}
	for _, e := range legs {
		repayDebt(eng.entity(e.User), e.Token, e.Amount)
	}
	return nil
}

// repayDebt reduces debt by amount, clamping an overshoot below zero back
// to zero. The overshoot is accrued interest the raw ledger never saw.
func repayDebt(entity *LoanEntity, token string, amount decimal.Decimal) {
	entity.Debt.Increase(token, amount.Neg())
	if entity.Debt.Amount(token).IsNegative() {
		entity.Debt.Set(token, decimal.Zero)
	}
}

// liquidationHandler builds the liquidate handler. Both legs belong to the
// liquidatee, carried on each event's User field; the liquidator is named
// separately and its portfolios are never touched here.
func liquidationHandler(requireCollateral bool) Handler {
	return func(eng *Engine, batch []*domain.ProtocolEvent) error {
		collateral := legsOf(batch, domain.LegCollateral)
		debt := legsOf(batch, domain.LegDebt)

		if requireCollateral && len(collateral) == 0 {
			return eng.inconsistency(batch, "liquidation batch has no collateral leg")
		}
		if len(debt) == 0 {
			return eng.inconsistency(batch, "liquidation batch has no debt leg")
		}

		for _, e := range collateral {
			eng.entity(e.User).Collateral.Increase(e.Token, e.Amount.Neg())
		}
		for _, e := range debt {
			repayDebt(eng.entity(e.User), e.Token, e.Amount)
		}
		return nil
	}
}

func legsOf(batch []*domain.ProtocolEvent, leg domain.EventLeg) []*domain.ProtocolEvent {
	var out []*domain.ProtocolEvent
	for _, e := range batch {
		if e.Leg == leg {
			out = append(out, e)
		}
	}
	return out
}
