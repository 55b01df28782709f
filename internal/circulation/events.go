package circulation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanCreatedEvent is journaled when a book is lent.
type LoanCreatedEvent struct {
	LoanID     uuid.UUID  `json:"loan_id"`
	BookID     uuid.UUID  `json:"book_id"`
	BorrowerID uuid.UUID  `json:"borrower_id"`
	GroupID    *uuid.UUID `json:"group_id,omitempty"`
	DueAt      time.Time  `json:"due_at"`
}

// LoanReturnedEvent is journaled when a loan is closed by its borrower.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID       `json:"loan_id"`
	State      LoanState       `json:"state"`
	Condition  Condition       `json:"condition"`
	ReturnedAt time.Time       `json:"returned_at"`
	Fine       decimal.Decimal `json:"fine"`
	Charged    decimal.Decimal `json:"charged"`
	Reason     FineReason      `json:"reason,omitempty"`
}

// FineAccruedEvent is journaled when the sweeper moves a loan forward.
type FineAccruedEvent struct {
	LoanID  uuid.UUID       `json:"loan_id"`
	From    LoanState       `json:"from"`
	To      LoanState       `json:"to"`
	Fine    decimal.Decimal `json:"fine"`
	Charged decimal.Decimal `json:"charged"`
	At      time.Time       `json:"at"`
}

// FinePaidEvent is journaled when a fine is settled.
type FinePaidEvent struct {
	LoanID uuid.UUID       `json:"loan_id"`
	Amount decimal.Decimal `json:"amount"`
	Shares []FineShare     `json:"shares,omitempty"`
	PaidAt time.Time       `json:"paid_at"`
}

// LostCopyReleasedEvent is journaled when a lost copy is written off.
type LostCopyReleasedEvent struct {
	LoanID uuid.UUID `json:"loan_id"`
	BookID uuid.UUID `json:"book_id"`
	At     time.Time `json:"at"`
}

// newEvent builds the journal entry for the next version of loan.
func newEvent(loan *Loan, eventType string, payload any, at time.Time) (LoanEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return LoanEvent{}, err
	}
	return LoanEvent{
		LoanID:    loan.ID,
		Type:      eventType,
		Data:      data,
		Version:   loan.Version + 1,
		CreatedAt: at,
	}, nil
}
