package circulation_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraloan/internal/circulation"
)

func TestSweepMarksOverdueAndAccruesFine(t *testing.T) {
	f := newFixture(t)
	loan, err := f.ledger.BorrowIndividual(f.ctx, uuid.New(), f.book("100", 1).ID)
	require.NoError(t, err)

	f.clock.Advance(29 * day)
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Overdue)

	f.clock.Advance(2 * day)
	report, err = f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overdue)
	assert.Zero(t, report.Failed)

	got := f.loan(loan.ID)
	assert.Equal(t, circulation.StateOverdue, got.State)
	assert.Nil(t, got.ReturnedAt)
	assertAmount(t, "250", got.FineAmount)
	assert.Equal(t, circulation.FineReasonMissingAfterDeadline, got.FineReason)
	assertAmount(t, "250", f.balance(loan.BorrowerID))

	overdue := f.notifier.of("overdue")
	require.Len(t, overdue, 1)
	assert.Equal(t, loan.BorrowerID, overdue[0].userID)

	events, err := f.ledger.LoanEvents(f.ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.EventLoanOverdue, events[len(events)-1].Type)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	loan, err := f.ledger.BorrowIndividual(f.ctx, uuid.New(), f.book("100", 1).ID)
	require.NoError(t, err)
	f.clock.Advance(31 * day)

	_, err = f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Overdue)
	assert.Zero(t, report.Refreshed)
	assertAmount(t, "250", f.balance(loan.BorrowerID))
	assert.Equal(t, 2, f.loan(loan.ID).Version)
}

func TestSweepRefreshesRunningFine(t *testing.T) {
	f := newFixture(t)
	loan, err := f.ledger.BorrowIndividual(f.ctx, uuid.New(), f.book("100", 1).ID)
	require.NoError(t, err)

	f.clock.Advance(31 * day)
	_, err = f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)

	f.clock.Advance(day)
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Refreshed)
	assertAmount(t, "300", f.loan(loan.ID).FineAmount)
	assertAmount(t, "300", f.balance(loan.BorrowerID))

	// Returning the same day charges nothing more.
	got := f.returnLoan(loan, circulation.ConditionGood)
	assertAmount(t, "300", got.FineAmount)
	assertAmount(t, "300", f.balance(loan.BorrowerID))
}

func TestSweepFineNeverDecreases(t *testing.T) {
	f := newFixture(t)
	loan, err := f.ledger.BorrowIndividual(f.ctx, uuid.New(), f.book("100", 1).ID)
	require.NoError(t, err)

	f.clock.Advance(35 * day)
	_, err = f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assertAmount(t, "450", f.loan(loan.ID).FineAmount)

	// A backdated return would compute a smaller fine; the recorded one stands.
	at := loan.DueAt.Add(day)
	got, err := f.ledger.ReturnLoan(f.ctx, circulation.ReturnRequest{
		LoanID:     loan.ID,
		CallerID:   loan.BorrowerID,
		Condition:  circulation.ConditionGood,
		ReturnedAt: &at,
	})
	require.NoError(t, err)
	assertAmount(t, "450", got.FineAmount)
	assertAmount(t, "450", f.balance(loan.BorrowerID))
}

func TestSweepMarksLostAfterThreshold(t *testing.T) {
	f := newFixture(t)
	book := f.book("100", 1)
	loan, err := f.ledger.BorrowIndividual(f.ctx, uuid.New(), book.ID)
	require.NoError(t, err)

	f.clock.Advance(60 * day)
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Lost)

	got := f.loan(loan.ID)
	assert.Equal(t, circulation.StateLost, got.State)
	assert.Equal(t, circulation.ConditionLost, got.Condition)
	require.NotNil(t, got.ReturnedAt)
	assert.Equal(t, f.clock.Now(), *got.ReturnedAt)
	assertAmount(t, "1700", got.FineAmount)
	assertAmount(t, "1700", f.balance(loan.BorrowerID))
	assert.True(t, got.HoldsCopy)
	assert.Equal(t, 1, f.borrowed(book.ID))
	assert.Len(t, f.notifier.of("fine"), 1)

	_, err = f.ledger.ReturnLoan(f.ctx, circulation.ReturnRequest{LoanID: loan.ID, CallerID: loan.BorrowerID, Condition: circulation.ConditionGood})
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	report, err = f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Lost)
	assert.Zero(t, report.Reconciled)
}

func TestSweepNotifiesEveryGroupMember(t *testing.T) {
	f := newFixture(t)
	g := f.group(3)
	loan, err := f.ledger.BorrowGroup(f.ctx, g.Members[0], g.ID, f.book("100", 1).ID)
	require.NoError(t, err)

	f.clock.Advance(181 * day)
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overdue)

	var notified []uuid.UUID
	for _, s := range f.notifier.of("overdue") {
		assert.Equal(t, loan.ID, s.loanID)
		notified = append(notified, s.userID)
	}
	assert.ElementsMatch(t, g.Members, notified)

	// 250 split three ways.
	assertAmount(t, "83.34", f.balance(g.Members[0]))
	assertAmount(t, "83.33", f.balance(g.Members[1]))
	assertAmount(t, "83.33", f.balance(g.Members[2]))
}

func TestSweepReconcilesCopyDrift(t *testing.T) {
	f := newFixture(t)
	book := f.book("100", 3)
	_, err := f.ledger.BorrowIndividual(f.ctx, uuid.New(), book.ID)
	require.NoError(t, err)

	require.NoError(t, f.books.AdjustBorrowedCopies(f.ctx, book.ID, 2))
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reconciled)
	assert.Equal(t, 1, f.borrowed(book.ID))

	report, err = f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Reconciled)
}

func TestSweepIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	bad, good := uuid.New(), uuid.New()
	badLoan, err := f.ledger.BorrowIndividual(f.ctx, bad, f.book("100", 1).ID)
	require.NoError(t, err)
	goodLoan, err := f.ledger.BorrowIndividual(f.ctx, good, f.book("100", 1).ID)
	require.NoError(t, err)

	balances := &flakyBalances{Balances: f.balances, failAdjustFor: bad}
	f.configure(func(d *circulation.Deps, _ *circulation.Policy) { d.Balances = balances })

	f.clock.Advance(31 * day)
	report, err := f.sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Overdue)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], badLoan.ID.String())

	assert.Equal(t, circulation.StateBorrowed, f.loan(badLoan.ID).State)
	assert.Equal(t, circulation.StateOverdue, f.loan(goodLoan.ID).State)
}

func TestSweeperRunRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	err := f.sweeper.Run(f.ctx, "every tuesday-ish")
	assert.Error(t, err)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	assert.NoError(t, f.sweeper.Run(ctx, "@hourly"))
}
