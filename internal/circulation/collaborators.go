package circulation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStore persists loan records and their event journal. UpdateLoan must
// reject a write whose loan.Version does not match the stored version and
// bump the version on success.
type LoanStore interface {
	CreateLoan(ctx context.Context, loan *Loan, event LoanEvent) error
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	UpdateLoan(ctx context.Context, loan *Loan, event LoanEvent) error
	ListLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error)
	LoanEvents(ctx context.Context, id uuid.UUID) ([]LoanEvent, error)
	// LoanBookIDs lists every book that has ever been lent.
	LoanBookIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Books is the catalog as seen by the ledger.
type Books interface {
	Get(ctx context.Context, id uuid.UUID) (*Book, error)
	AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) error
}

// Groups is the membership service as seen by the ledger.
type Groups interface {
	Get(ctx context.Context, id uuid.UUID) (*Group, error)
	// FindActiveForUser returns nil, nil when the user is in no active group.
	FindActiveForUser(ctx context.Context, userID uuid.UUID) (*Group, error)
	AdjustTotalFines(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
}

// Balances holds each user's running fine total.
type Balances interface {
	Get(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Adjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error
}

// Notifier delivers best-effort messages. Errors are logged by the caller
// and never fail the operation that triggered them.
type Notifier interface {
	SendOverdue(ctx context.Context, userID uuid.UUID, loan *Loan, book *Book) error
	SendFine(ctx context.Context, userID uuid.UUID, loan *Loan, book *Book, amount decimal.Decimal, reason FineReason) error
}

// Locker serializes work on contended keys. Lock acquires every key and
// returns a func releasing them all.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

func bookKey(id uuid.UUID) string  { return "book:" + id.String() }
func userKey(id uuid.UUID) string  { return "user:" + id.String() }
func groupKey(id uuid.UUID) string { return "group:" + id.String() }
func loanKey(id uuid.UUID) string  { return "loan:" + id.String() }
