package ledger

import (
	"solana-lending-index/internal/domain"
)

// LoanEntity is one user's position within one protocol: a collateral
// portfolio, a debt portfolio, and the slot of the last applied event.
type LoanEntity struct {
	User            string
	Collateral      *Portfolio
	Debt            *Portfolio
	LastUpdatedSlot int64
}

// NewLoanEntity creates an empty loan entity.
func NewLoanEntity(user string, dust DustTable) *LoanEntity {
	return &LoanEntity{
		User:       user,
		Collateral: NewPortfolio(dust),
		Debt:       NewPortfolio(dust),
	}
}

// entityFromState restores a persisted snapshot.
func entityFromState(s *domain.LoanState, dust DustTable) *LoanEntity {
	return &LoanEntity{
		User:            s.User,
		Collateral:      fromMap(s.Collateral, dust),
		Debt:            fromMap(s.Debt, dust),
		LastUpdatedSlot: s.Slot,
	}
}

// ToState snapshots the entity for persistence.
func (e *LoanEntity) ToState(protocol string) *domain.LoanState {
	return &domain.LoanState{
		Protocol:   protocol,
		User:       e.User,
		Collateral: e.Collateral.ToMap(),
		Debt:       e.Debt.ToMap(),
		Slot:       e.LastUpdatedSlot,
	}
}
