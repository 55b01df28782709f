package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraloan/internal/circulation"
)

func TestLoansVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewLoans()
	loan := &circulation.Loan{
		ID:         uuid.New(),
		BookID:     uuid.New(),
		BorrowerID: uuid.New(),
		BorrowedAt: time.Now(),
		State:      circulation.StateBorrowed,
		Version:    1,
	}
	require.NoError(t, s.CreateLoan(ctx, loan, circulation.LoanEvent{LoanID: loan.ID, Type: circulation.EventLoanCreated, Version: 1}))
	assert.Error(t, s.CreateLoan(ctx, loan, circulation.LoanEvent{LoanID: loan.ID}))

	first, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	stale, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)

	first.State = circulation.StateOverdue
	require.NoError(t, s.UpdateLoan(ctx, first, circulation.LoanEvent{LoanID: loan.ID, Type: circulation.EventLoanOverdue, Version: 2}))
	assert.Equal(t, 2, first.Version)

	stale.State = circulation.StateReturned
	assert.ErrorIs(t, s.UpdateLoan(ctx, stale, circulation.LoanEvent{LoanID: loan.ID}), circulation.ErrConcurrencyConflict)

	got, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StateOverdue, got.State)

	events, err := s.LoanEvents(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(2), events[1].ID)

	_, err = s.GetLoan(ctx, uuid.New())
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound)
}

func TestLoansAreCopiedOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewLoans()
	loan := &circulation.Loan{ID: uuid.New(), State: circulation.StateBorrowed, Version: 1}
	require.NoError(t, s.CreateLoan(ctx, loan, circulation.LoanEvent{LoanID: loan.ID}))

	loan.State = circulation.StateLost
	got, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StateBorrowed, got.State)

	got.State = circulation.StateReturned
	again, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StateBorrowed, again.State)
}

func TestListLoansAndBookIDs(t *testing.T) {
	ctx := context.Background()
	s := NewLoans()
	user, book := uuid.New(), uuid.New()
	states := []circulation.LoanState{circulation.StateBorrowed, circulation.StateReturned, circulation.StateOverdue}
	for _, st := range states {
		l := &circulation.Loan{ID: uuid.New(), BookID: book, BorrowerID: user, State: st, Version: 1}
		require.NoError(t, s.CreateLoan(ctx, l, circulation.LoanEvent{LoanID: l.ID}))
	}
	other := &circulation.Loan{ID: uuid.New(), BookID: uuid.New(), BorrowerID: uuid.New(), State: circulation.StateBorrowed, Version: 1}
	require.NoError(t, s.CreateLoan(ctx, other, circulation.LoanEvent{LoanID: other.ID}))

	active, err := s.ListLoans(ctx, circulation.LoanFilter{BorrowerID: &user, States: circulation.ActiveStates})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, circulation.StateBorrowed, active[0].State)
	assert.Equal(t, circulation.StateOverdue, active[1].State)

	ids, err := s.LoanBookIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{book, other.BookID}, ids)
}

func TestBooksCopyBounds(t *testing.T) {
	ctx := context.Background()
	s := NewBooks()
	book := circulation.Book{ID: uuid.New(), Title: "Dune", Price: decimal.NewFromInt(20), TotalCopies: 2}
	require.NoError(t, s.Put(ctx, book))

	require.NoError(t, s.AdjustBorrowedCopies(ctx, book.ID, 2))
	assert.ErrorIs(t, s.AdjustBorrowedCopies(ctx, book.ID, 1), ErrCopyBounds)
	require.NoError(t, s.AdjustBorrowedCopies(ctx, book.ID, -2))
	assert.ErrorIs(t, s.AdjustBorrowedCopies(ctx, book.ID, -1), ErrCopyBounds)
	assert.ErrorIs(t, s.AdjustBorrowedCopies(ctx, uuid.New(), 1), circulation.ErrBookNotFound)

	got, err := s.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Zero(t, got.BorrowedCopies)
}

func TestGroupsValidation(t *testing.T) {
	members := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	tests := []struct {
		name  string
		group circulation.Group
		ok    bool
	}{
		{"three members", circulation.Group{ID: uuid.New(), Members: members, LeaderID: members[0]}, true},
		{"too few", circulation.Group{ID: uuid.New(), Members: members[:2], LeaderID: members[0]}, false},
		{"too many for cap", circulation.Group{ID: uuid.New(), Members: members, LeaderID: members[0], MaxMembers: 7}, false},
		{"leader outside", circulation.Group{ID: uuid.New(), Members: members, LeaderID: uuid.New()}, false},
		{"duplicate", circulation.Group{ID: uuid.New(), Members: []uuid.UUID{members[0], members[0], members[1]}, LeaderID: members[0]}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGroups().Put(context.Background(), tt.group)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGroupsFindActiveForUser(t *testing.T) {
	ctx := context.Background()
	s := NewGroups()
	user := uuid.New()
	old := circulation.Group{ID: uuid.New(), Members: []uuid.UUID{user, uuid.New(), uuid.New()}, LeaderID: user, Disbanded: true}
	current := circulation.Group{ID: uuid.New(), Members: []uuid.UUID{uuid.New(), user, uuid.New()}}
	current.LeaderID = current.Members[0]
	require.NoError(t, s.Put(ctx, old))
	require.NoError(t, s.Put(ctx, current))

	g, err := s.FindActiveForUser(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, current.ID, g.ID)
	assert.Equal(t, 6, g.MaxMembers)

	g, err = s.FindActiveForUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, g)

	require.NoError(t, s.AdjustTotalFines(ctx, current.ID, decimal.NewFromInt(250)))
	require.NoError(t, s.SetMembers(ctx, current.ID, []uuid.UUID{current.Members[0], uuid.New(), uuid.New()}))
	g, err = s.Get(ctx, current.ID)
	require.NoError(t, err)
	assert.False(t, g.HasMember(user))
	assert.True(t, g.TotalFines.Equal(decimal.NewFromInt(250)))

	assert.Error(t, s.SetMembers(ctx, current.ID, []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}))
	assert.ErrorIs(t, s.SetMembers(ctx, uuid.New(), nil), circulation.ErrGroupNotFound)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := NewBalances()
	user := uuid.New()

	b, err := s.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	require.NoError(t, s.Adjust(ctx, user, decimal.RequireFromString("83.34")))
	require.NoError(t, s.Adjust(ctx, user, decimal.RequireFromString("-83.34")))
	b, err = s.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}
