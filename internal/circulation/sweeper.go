package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SweepReport counts what one sweep did. A sweep never fails as a whole;
// per-record failures are counted and collected.
type SweepReport struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Overdue    int           `json:"overdue"`
	Refreshed  int           `json:"refreshed"`
	Lost       int           `json:"lost"`
	Reconciled int           `json:"reconciled"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
}

func (r *SweepReport) fail(stage string, id uuid.UUID, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s %s: %v", stage, id, err))
	sweepRecords.WithLabelValues(stage, "failed").Inc()
}

// Sweeper advances time-driven loan states. Sweep is idempotent: it only
// moves loans still in the expected prior state and recomputes fines from
// the persisted due date, so re-running it never charges twice.
type Sweeper struct {
	ledger *Ledger
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewSweeper(ledger *Ledger) *Sweeper {
	return &Sweeper{ledger: ledger, logger: ledger.logger.With("component", "sweeper")}
}

var errSkipped = errors.New("loan changed since listing")

// Sweep runs every stage once against the ledger's clock.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrSweepRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	l := s.ledger
	now := l.now()
	ctx, span := l.tracer.Start(ctx, "circulation.sweep", trace.WithAttributes(
		attribute.String("sweep.now", now.Format(time.RFC3339)),
	))
	defer span.End()

	report := &SweepReport{StartedAt: now}

	due, err := l.loans.ListLoans(ctx, LoanFilter{States: ActiveStates, DueBefore: &now})
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("list overdue loans: %w", err))
	}
	for _, loan := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		stage, err := s.advance(ctx, loan.ID, now)
		switch {
		case errors.Is(err, errSkipped):
			sweepRecords.WithLabelValues("advance", "skipped").Inc()
		case err != nil:
			report.fail("advance", loan.ID, err)
			s.logger.Error("sweep failed for loan", "loan_id", loan.ID, "error", err)
		default:
			sweepRecords.WithLabelValues(stage, "ok").Inc()
			switch stage {
			case "overdue":
				report.Overdue++
			case "refresh":
				report.Refreshed++
			case "lost":
				report.Lost++
			}
		}
	}

	bookIDs, err := l.loans.LoanBookIDs(ctx)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("list lent books: %w", err))
	}
	for _, bookID := range bookIDs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		fixed, err := s.reconcileBook(ctx, bookID)
		if err != nil {
			report.fail("reconcile", bookID, err)
			s.logger.Error("reconcile failed for book", "book_id", bookID, "error", err)
			continue
		}
		if fixed {
			report.Reconciled++
			sweepRecords.WithLabelValues("reconcile", "ok").Inc()
		}
	}

	report.Duration = l.clock().Sub(now)
	span.SetAttributes(
		attribute.Int("sweep.overdue", report.Overdue),
		attribute.Int("sweep.lost", report.Lost),
		attribute.Int("sweep.failed", report.Failed),
	)
	s.logger.Info("sweep finished",
		"overdue", report.Overdue,
		"refreshed", report.Refreshed,
		"lost", report.Lost,
		"reconciled", report.Reconciled,
		"failed", report.Failed,
	)
	return report, nil
}

// advance moves one loan to Overdue or Lost, or refreshes its running fine.
// It returns the stage applied.
func (s *Sweeper) advance(ctx context.Context, loanID uuid.UUID, now time.Time) (string, error) {
	l := s.ledger
	unlock, err := l.lockStable(ctx, l.loanKeys(loanID))
	if err != nil {
		return "", err
	}

	loan, err := l.getLoan(ctx, loanID)
	if err != nil {
		unlock()
		return "", err
	}
	if !loan.State.Active() || !loan.DueAt.Before(now) {
		unlock()
		return "", errSkipped
	}

	book, err := l.eligibility.book(ctx, loan.BookID)
	if err != nil {
		unlock()
		return "", err
	}

	updated := loan.Clone()
	stage := "refresh"
	condition := ConditionGood
	switch {
	case now.Sub(loan.DueAt) >= l.policy.LostAfter:
		stage = "lost"
		condition = ConditionLost
		updated.State = StateLost
		updated.Condition = ConditionLost
		updated.ReturnedAt = &now
	case loan.State == StateBorrowed:
		stage = "overdue"
		updated.State = StateOverdue
	}

	fine, reason := ComputeFine(book.Price, loan.DueAt, now, condition)
	charge := decimal.Zero
	if fine.GreaterThan(loan.FineAmount) {
		charge = fine.Sub(loan.FineAmount)
		updated.FineAmount = fine
		updated.FineReason = reason
	}
	if stage == "refresh" && charge.IsZero() {
		unlock()
		return "", errSkipped
	}

	comp := &compensations{logger: l.logger}
	if _, err := l.fines.assess(ctx, updated, charge, comp); err != nil {
		comp.rollback(ctx)
		unlock()
		return "", err
	}
	if stage == "lost" && updated.HoldsCopy && l.policy.ReleaseLostCopies {
		if err := l.releaseCopy(ctx, updated, comp); err != nil {
			comp.rollback(ctx)
			unlock()
			return "", err
		}
	}

	eventType := EventFineAccrued
	switch stage {
	case "overdue":
		eventType = EventLoanOverdue
	case "lost":
		eventType = EventLoanLost
	}
	event, err := newEvent(updated, eventType, FineAccruedEvent{
		LoanID:  updated.ID,
		From:    loan.State,
		To:      updated.State,
		Fine:    updated.FineAmount,
		Charged: charge,
		At:      now,
	}, now)
	if err != nil {
		comp.rollback(ctx)
		unlock()
		return "", fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := l.loans.UpdateLoan(ctx, updated, event); err != nil {
		comp.rollback(ctx)
		unlock()
		return "", fmt.Errorf("failed to update loan: %w", err)
	}
	unlock()

	if charge.IsPositive() {
		finesAssessed.Add(charge.InexactFloat64())
	}
	l.notifyOverdue(ctx, updated, book)
	if stage == "lost" {
		l.notifyFine(ctx, updated, book)
	}
	return stage, nil
}

// reconcileBook sets a book's borrowed-copy count to the number of loans
// holding one of its copies. It reports whether a correction was needed.
func (s *Sweeper) reconcileBook(ctx context.Context, bookID uuid.UUID) (bool, error) {
	l := s.ledger
	unlock, err := l.locker.Lock(ctx, bookKey(bookID))
	if err != nil {
		return false, unavailable("acquire locks", err)
	}
	defer unlock()

	holds := true
	holding, err := l.loans.ListLoans(ctx, LoanFilter{BookID: &bookID, HoldsCopy: &holds})
	if err != nil {
		return false, fmt.Errorf("list loans holding copies: %w", err)
	}
	book, err := l.eligibility.book(ctx, bookID)
	if err != nil {
		return false, err
	}

	drift := len(holding) - book.BorrowedCopies
	if drift == 0 {
		return false, nil
	}
	if len(holding) > book.TotalCopies {
		return false, fmt.Errorf("book %s: %d loans hold copies but only %d exist", bookID, len(holding), book.TotalCopies)
	}
	if err := l.books.AdjustBorrowedCopies(ctx, bookID, drift); err != nil {
		return false, unavailable("adjust borrowed copies", err)
	}
	s.logger.Warn("book copy count drifted",
		"book_id", bookID,
		"recorded", book.BorrowedCopies,
		"holding_loans", len(holding),
	)
	return true, nil
}

// Run sweeps on the cron schedule until ctx is done. A failed sweep is
// logged and retried at the next tick.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep aborted", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.logger.Info("sweeper scheduled", "schedule", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
