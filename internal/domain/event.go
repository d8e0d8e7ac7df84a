package domain

import "github.com/shopspring/decimal"

// EventKind classifies a decoded lending instruction.
type EventKind string

const (
	KindDeposit   EventKind = "deposit"
	KindWithdraw  EventKind = "withdraw"
	KindBorrow    EventKind = "borrow"
	KindRepay     EventKind = "repay"
	KindLiquidate EventKind = "liquidate"
)

// EventLeg names the transfer leg within an instruction that an event
// describes. A single instruction may produce several legs: a liquidation
// carries a collateral seizure leg and a debt repayment leg.
type EventLeg string

const (
	LegCollateral EventLeg = "collateral"
	LegDebt       EventLeg = "debt"
	LegFee        EventLeg = "fee"
)

// ProtocolEvent is one decoded transfer leg of a lending instruction.
//
// Events sharing (TxSignature, InstructionIndex) form one batch and are
// applied atomically by the replay engine. User is always the obligation
// owner the leg applies to; on liquidation legs that is the liquidatee,
// and Liquidator carries the liquidating account separately so attribution
// never depends on leg order.
type ProtocolEvent struct {
	Protocol         string
	Slot             int64
	TxSignature      string
	TransactionIndex int
	InstructionIndex int
	EventIndex       int // position of the leg within the instruction
	Kind             EventKind
	Leg              EventLeg
	User             string
	Liquidator       string // set only on liquidation legs
	Token            string
	Amount           decimal.Decimal // non-negative raw token amount
}
