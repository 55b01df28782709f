package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	CanBorrowIndividual(ctx context.Context, userID, bookID uuid.UUID) (*Denial, error)
	CanBorrowGroup(ctx context.Context, userID, groupID, bookID uuid.UUID) (*Denial, error)
	BorrowIndividual(ctx context.Context, userID, bookID uuid.UUID) (*Loan, error)
	BorrowGroup(ctx context.Context, userID, groupID, bookID uuid.UUID) (*Loan, error)
	ReturnLoan(ctx context.Context, req ReturnRequest) (*Loan, error)
	PayFine(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	ReleaseLostCopy(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	LoanEvents(ctx context.Context, loanID uuid.UUID) ([]LoanEvent, error)
	ListActiveLoansFor(ctx context.Context, actor Actor) ([]*Loan, error)
	ListLoanHistoryFor(ctx context.Context, actor Actor) ([]*Loan, error)
}

// SweepRunner triggers an out-of-schedule sweep.
type SweepRunner interface {
	Sweep(ctx context.Context) (*SweepReport, error)
}

var (
	_ Service     = (*Ledger)(nil)
	_ SweepRunner = (*Sweeper)(nil)
)
