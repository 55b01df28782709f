package circulation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"libraloan/internal/circulation"
	"libraloan/internal/lock"
	"libraloan/internal/store/memory"
)

var day = 24 * time.Hour

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sent struct {
	kind   string
	userID uuid.UUID
	loanID uuid.UUID
	amount decimal.Decimal
}

// recorder is a Notifier that remembers every call and can be told to fail.
type recorder struct {
	mu   sync.Mutex
	sent []sent
	fail bool
}

func (r *recorder) SendOverdue(ctx context.Context, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{kind: "overdue", userID: userID, loanID: loan.ID})
	if r.fail {
		return errors.New("smtp: connection refused")
	}
	return nil
}

func (r *recorder) SendFine(ctx context.Context, userID uuid.UUID, loan *circulation.Loan, book *circulation.Book, amount decimal.Decimal, reason circulation.FineReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{kind: "fine", userID: userID, loanID: loan.ID, amount: amount})
	if r.fail {
		return errors.New("smtp: connection refused")
	}
	return nil
}

func (r *recorder) of(kind string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *clock
	loans    *memory.Loans
	books    *memory.Books
	groups   *memory.Groups
	balances *memory.Balances
	notifier *recorder
	deps     circulation.Deps
	policy   circulation.Policy
	ledger   *circulation.Ledger
	sweeper  *circulation.Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		loans:    memory.NewLoans(),
		books:    memory.NewBooks(),
		groups:   memory.NewGroups(),
		balances: memory.NewBalances(),
		notifier: &recorder{},
	}
	f.deps = circulation.Deps{
		Loans:    f.loans,
		Books:    f.books,
		Groups:   f.groups,
		Balances: f.balances,
		Notifier: f.notifier,
		Locker:   lock.NewKeyed(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    f.clock.Now,
	}
	f.policy = circulation.DefaultPolicy()
	f.rebuild()
	return f
}

// configure changes collaborators or policy and rebuilds the ledger over the
// same stores.
func (f *fixture) configure(fn func(d *circulation.Deps, p *circulation.Policy)) {
	fn(&f.deps, &f.policy)
	f.rebuild()
}

func (f *fixture) rebuild() {
	f.ledger = circulation.NewLedger(f.deps, f.policy)
	f.sweeper = circulation.NewSweeper(f.ledger)
}

func (f *fixture) book(price string, copies int) circulation.Book {
	f.t.Helper()
	b := circulation.Book{
		ID:          uuid.New(),
		Title:       "Book " + price,
		Price:       decimal.RequireFromString(price),
		TotalCopies: copies,
	}
	require.NoError(f.t, f.books.Put(f.ctx, b))
	return b
}

// group creates a group of n fresh users; the first one leads.
func (f *fixture) group(n int) circulation.Group {
	f.t.Helper()
	members := make([]uuid.UUID, n)
	for i := range members {
		members[i] = uuid.New()
	}
	g := circulation.Group{
		ID:       uuid.New(),
		Name:     "Group",
		Members:  members,
		LeaderID: members[0],
	}
	require.NoError(f.t, f.groups.Put(f.ctx, g))
	return g
}

func (f *fixture) balance(userID uuid.UUID) decimal.Decimal {
	f.t.Helper()
	b, err := f.balances.Get(f.ctx, userID)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) borrowed(bookID uuid.UUID) int {
	f.t.Helper()
	b, err := f.books.Get(f.ctx, bookID)
	require.NoError(f.t, err)
	return b.BorrowedCopies
}

func (f *fixture) loan(id uuid.UUID) *circulation.Loan {
	f.t.Helper()
	l, err := f.ledger.GetLoan(f.ctx, id)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) returnLoan(loan *circulation.Loan, condition circulation.Condition) *circulation.Loan {
	f.t.Helper()
	got, err := f.ledger.ReturnLoan(f.ctx, circulation.ReturnRequest{
		LoanID:    loan.ID,
		CallerID:  loan.BorrowerID,
		Condition: condition,
	})
	require.NoError(f.t, err)
	return got
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
