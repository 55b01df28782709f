package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxLockAttempts = 3

// Policy holds the tunable parts of the lending rules.
type Policy struct {
	IndividualLoanPeriod time.Duration
	GroupLoanPeriod      time.Duration
	// LostAfter is how long past due an unreturned loan is written off as lost.
	LostAfter time.Duration
	// ReleaseLostCopies frees the copy slot of a lost loan immediately instead
	// of keeping it occupied until ReleaseLostCopy is called.
	ReleaseLostCopies bool
}

// DefaultPolicy is 30 days for individuals, 180 for groups, and a loan is
// lost 30 days after its due date.
func DefaultPolicy() Policy {
	return Policy{
		IndividualLoanPeriod: 30 * 24 * time.Hour,
		GroupLoanPeriod:      180 * 24 * time.Hour,
		LostAfter:            30 * 24 * time.Hour,
	}
}

// Deps are the collaborators a Ledger works against.
type Deps struct {
	Loans    LoanStore
	Books    Books
	Groups   Groups
	Balances Balances
	Notifier Notifier
	Locker   Locker
	Logger   *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Ledger is the only writer of loan state. Every mutation that touches a
// book's copy count or an actor's active-loan status runs under the keys of
// that book and actor.
type Ledger struct {
	loans       LoanStore
	books       Books
	groups      Groups
	notifier    Notifier
	locker      Locker
	eligibility *Eligibility
	fines       fineDistributor
	policy      Policy
	logger      *slog.Logger
	tracer      trace.Tracer
	clock       func() time.Time
}

// NewLedger wires a ledger. Policy fields left at zero take their defaults.
func NewLedger(deps Deps, policy Policy) *Ledger {
	def := DefaultPolicy()
	if policy.IndividualLoanPeriod <= 0 {
		policy.IndividualLoanPeriod = def.IndividualLoanPeriod
	}
	if policy.GroupLoanPeriod <= 0 {
		policy.GroupLoanPeriod = def.GroupLoanPeriod
	}
	if policy.LostAfter <= 0 {
		policy.LostAfter = def.LostAfter
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		loans:       deps.Loans,
		books:       deps.Books,
		groups:      deps.Groups,
		notifier:    deps.Notifier,
		locker:      deps.Locker,
		eligibility: NewEligibility(deps.Loans, deps.Books, deps.Groups, deps.Balances),
		fines:       fineDistributor{groups: deps.Groups, balances: deps.Balances},
		policy:      policy,
		logger:      logger.With("component", "ledger"),
		tracer:      otel.Tracer("libraloan/circulation"),
		clock:       clock,
	}
}

func (l *Ledger) now() time.Time {
	return l.clock().UTC()
}

// Policy returns the effective policy.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// CanBorrowIndividual reports eligibility without reserving anything.
func (l *Ledger) CanBorrowIndividual(ctx context.Context, userID, bookID uuid.UUID) (*Denial, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := requireID("book_id", bookID); err != nil {
		return nil, err
	}
	return l.eligibility.CanBorrowIndividual(ctx, userID, bookID)
}

// CanBorrowGroup reports eligibility without reserving anything.
func (l *Ledger) CanBorrowGroup(ctx context.Context, userID, groupID, bookID uuid.UUID) (*Denial, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := requireID("group_id", groupID); err != nil {
		return nil, err
	}
	if err := requireID("book_id", bookID); err != nil {
		return nil, err
	}
	return l.eligibility.CanBorrowGroup(ctx, userID, groupID, bookID)
}

// BorrowIndividual lends bookID to userID if eligible. The check and the
// reservation happen under the same locks.
func (l *Ledger) BorrowIndividual(ctx context.Context, userID, bookID uuid.UUID) (loan *Loan, err error) {
	ctx, span := l.tracer.Start(ctx, "circulation.borrow_individual", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
	))
	defer func() { l.finishBorrow(span, "individual", err) }()

	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := requireID("book_id", bookID); err != nil {
		return nil, err
	}

	unlock, err := l.lockStable(ctx, func(ctx context.Context) ([]string, error) {
		group, err := l.groups.FindActiveForUser(ctx, userID)
		if err != nil {
			return nil, unavailable("find group for user", err)
		}
		keys := []string{bookKey(bookID), userKey(userID)}
		if group != nil {
			keys = append(keys, groupKey(group.ID))
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	defer unlock()

	denial, err := l.eligibility.CanBorrowIndividual(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if denial != nil {
		return nil, denial
	}

	now := l.now()
	loan = &Loan{
		ID:         uuid.New(),
		BookID:     bookID,
		BorrowerID: userID,
		BorrowedAt: now,
		DueAt:      now.Add(l.policy.IndividualLoanPeriod),
		State:      StateBorrowed,
		FineAmount: decimal.Zero,
		HoldsCopy:  true,
	}
	if err := l.reserve(ctx, loan); err != nil {
		return nil, err
	}
	l.logger.Info("loan created", "loan_id", loan.ID, "user_id", userID, "book_id", bookID, "due_at", loan.DueAt)
	return loan, nil
}

// BorrowGroup lends bookID to groupID on the request of member userID.
func (l *Ledger) BorrowGroup(ctx context.Context, userID, groupID, bookID uuid.UUID) (loan *Loan, err error) {
	ctx, span := l.tracer.Start(ctx, "circulation.borrow_group", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("group.id", groupID.String()),
		attribute.String("book.id", bookID.String()),
	))
	defer func() { l.finishBorrow(span, "group", err) }()

	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := requireID("group_id", groupID); err != nil {
		return nil, err
	}
	if err := requireID("book_id", bookID); err != nil {
		return nil, err
	}

	unlock, err := l.lockStable(ctx, func(ctx context.Context) ([]string, error) {
		group, err := l.eligibility.group(ctx, groupID)
		if err != nil {
			return nil, err
		}
		keys := []string{bookKey(bookID), groupKey(groupID)}
		for _, m := range group.Members {
			keys = append(keys, userKey(m))
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	defer unlock()

	denial, err := l.eligibility.CanBorrowGroup(ctx, userID, groupID, bookID)
	if err != nil {
		return nil, err
	}
	if denial != nil {
		return nil, denial
	}

	now := l.now()
	gid := groupID
	loan = &Loan{
		ID:         uuid.New(),
		BookID:     bookID,
		BorrowerID: userID,
		GroupID:    &gid,
		BorrowedAt: now,
		DueAt:      now.Add(l.policy.GroupLoanPeriod),
		State:      StateBorrowed,
		FineAmount: decimal.Zero,
		HoldsCopy:  true,
	}
	if err := l.reserve(ctx, loan); err != nil {
		return nil, err
	}
	l.logger.Info("group loan created", "loan_id", loan.ID, "group_id", groupID, "user_id", userID, "book_id", bookID, "due_at", loan.DueAt)
	return loan, nil
}

// reserve takes a copy slot and persists the loan, or neither.
func (l *Ledger) reserve(ctx context.Context, loan *Loan) error {
	comp := &compensations{logger: l.logger}

	if err := l.books.AdjustBorrowedCopies(ctx, loan.BookID, 1); err != nil {
		switch {
		case errors.Is(err, ErrCopyBounds):
			// The catalog shrank under us.
			return deny(ReasonBookUnavailable, "no copies of book %s are available", loan.BookID)
		case errors.Is(err, ErrBookNotFound):
			return err
		}
		return unavailable("reserve copy", err)
	}
	comp.add("borrowed copies "+loan.BookID.String(), func(ctx context.Context) error {
		return l.books.AdjustBorrowedCopies(ctx, loan.BookID, -1)
	})

	event, err := newEvent(loan, EventLoanCreated, LoanCreatedEvent{
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		BorrowerID: loan.BorrowerID,
		GroupID:    loan.GroupID,
		DueAt:      loan.DueAt,
	}, loan.BorrowedAt)
	if err != nil {
		comp.rollback(ctx)
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	loan.Version = 1
	if err := l.loans.CreateLoan(ctx, loan, event); err != nil {
		comp.rollback(ctx)
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// ReturnRequest closes a loan.
type ReturnRequest struct {
	LoanID    uuid.UUID
	CallerID  uuid.UUID
	Condition Condition
	Notes     string
	// ReturnedAt backdates the return; nil means now.
	ReturnedAt *time.Time
}

// ReturnLoan records the return of an active loan, assesses the fine and
// frees the copy slot.
func (l *Ledger) ReturnLoan(ctx context.Context, req ReturnRequest) (*Loan, error) {
	ctx, span := l.tracer.Start(ctx, "circulation.return_loan", trace.WithAttributes(
		attribute.String("loan.id", req.LoanID.String()),
		attribute.String("condition", string(req.Condition)),
	))
	defer span.End()

	if err := requireID("loan_id", req.LoanID); err != nil {
		return nil, err
	}
	if err := requireID("caller_id", req.CallerID); err != nil {
		return nil, err
	}
	if _, err := ParseCondition(string(req.Condition)); err != nil {
		return nil, err
	}

	unlock, err := l.lockStable(ctx, l.loanKeys(req.LoanID))
	if err != nil {
		return nil, recordErr(span, err)
	}

	updated, book, charged, err := l.returnLocked(ctx, req)
	unlock()
	if err != nil {
		return nil, recordErr(span, err)
	}

	if updated.FineAmount.IsPositive() {
		l.notifyFine(ctx, updated, book)
	}
	l.logger.Info("loan returned",
		"loan_id", updated.ID,
		"state", updated.State,
		"fine", updated.FineAmount.String(),
		"charged", charged.String(),
		"reason", updated.FineReason,
	)
	return updated, nil
}

func (l *Ledger) returnLocked(ctx context.Context, req ReturnRequest) (*Loan, *Book, decimal.Decimal, error) {
	loan, err := l.getLoan(ctx, req.LoanID)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	if !loan.State.Active() || loan.ReturnedAt != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("return loan %s in state %s: %w", loan.ID, loan.State, ErrInvalidState)
	}
	if err := l.authorize(ctx, loan, req.CallerID); err != nil {
		return nil, nil, decimal.Zero, err
	}

	returnAt := l.now()
	if req.ReturnedAt != nil {
		returnAt = req.ReturnedAt.UTC()
		if returnAt.Before(loan.BorrowedAt) {
			return nil, nil, decimal.Zero, &ValidationError{Field: "returned_at", Message: "before the loan was borrowed"}
		}
		if returnAt.After(l.now()) {
			return nil, nil, decimal.Zero, &ValidationError{Field: "returned_at", Message: "in the future"}
		}
	}

	book, err := l.eligibility.book(ctx, loan.BookID)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}

	updated := loan.Clone()
	updated.ReturnedAt = &returnAt
	updated.Condition = req.Condition
	updated.Notes = req.Notes
	updated.State = req.Condition.terminalState()

	fine, reason := ComputeFine(book.Price, loan.DueAt, returnAt, req.Condition)
	charge := decimal.Zero
	if fine.GreaterThan(loan.FineAmount) {
		charge = fine.Sub(loan.FineAmount)
		updated.FineAmount = fine
		updated.FineReason = reason
	}

	comp := &compensations{logger: l.logger}
	if _, err := l.fines.assess(ctx, updated, charge, comp); err != nil {
		comp.rollback(ctx)
		return nil, nil, decimal.Zero, err
	}

	if loan.HoldsCopy && (updated.State != StateLost || l.policy.ReleaseLostCopies) {
		if err := l.releaseCopy(ctx, updated, comp); err != nil {
			comp.rollback(ctx)
			return nil, nil, decimal.Zero, err
		}
	}

	event, err := newEvent(updated, EventLoanReturned, LoanReturnedEvent{
		LoanID:     updated.ID,
		State:      updated.State,
		Condition:  updated.Condition,
		ReturnedAt: returnAt,
		Fine:       updated.FineAmount,
		Charged:    charge,
		Reason:     updated.FineReason,
	}, l.now())
	if err != nil {
		comp.rollback(ctx)
		return nil, nil, decimal.Zero, fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := l.loans.UpdateLoan(ctx, updated, event); err != nil {
		comp.rollback(ctx)
		return nil, nil, decimal.Zero, fmt.Errorf("failed to update loan: %w", err)
	}
	if charge.IsPositive() {
		finesAssessed.Add(charge.InexactFloat64())
	}
	return updated, book, charge, nil
}

// PayFine settles the recorded fine of a closed loan and reverses exactly
// what was charged to each balance.
func (l *Ledger) PayFine(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	ctx, span := l.tracer.Start(ctx, "circulation.pay_fine", trace.WithAttributes(
		attribute.String("loan.id", loanID.String()),
	))
	defer span.End()

	if err := requireID("loan_id", loanID); err != nil {
		return nil, err
	}

	unlock, err := l.lockStable(ctx, l.loanKeys(loanID))
	if err != nil {
		return nil, recordErr(span, err)
	}
	defer unlock()

	loan, err := l.getLoan(ctx, loanID)
	if err != nil {
		return nil, recordErr(span, err)
	}
	switch {
	case loan.FinePaid:
		return nil, recordErr(span, fmt.Errorf("pay fine on loan %s: %w", loan.ID, ErrAlreadyPaid))
	case loan.State.Active():
		return nil, recordErr(span, fmt.Errorf("pay fine on loan %s: %w", loan.ID, ErrLoanActive))
	case !loan.FineAmount.IsPositive():
		return nil, recordErr(span, fmt.Errorf("pay fine on loan %s: %w", loan.ID, ErrNoFine))
	}

	comp := &compensations{logger: l.logger}
	if err := l.fines.reverse(ctx, loan, comp); err != nil {
		comp.rollback(ctx)
		return nil, recordErr(span, err)
	}

	now := l.now()
	updated := loan.Clone()
	updated.FinePaid = true
	updated.FinePaidAt = &now

	event, err := newEvent(updated, EventFinePaid, FinePaidEvent{
		LoanID: updated.ID,
		Amount: updated.FineAmount,
		Shares: updated.FineShares,
		PaidAt: now,
	}, now)
	if err != nil {
		comp.rollback(ctx)
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := l.loans.UpdateLoan(ctx, updated, event); err != nil {
		comp.rollback(ctx)
		return nil, recordErr(span, fmt.Errorf("failed to update loan: %w", err))
	}

	l.logger.Info("fine paid", "loan_id", updated.ID, "amount", updated.FineAmount.String())
	return updated, nil
}

// ReleaseLostCopy writes off the copy slot still held by a lost loan.
func (l *Ledger) ReleaseLostCopy(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	if err := requireID("loan_id", loanID); err != nil {
		return nil, err
	}

	unlock, err := l.lockStable(ctx, l.loanKeys(loanID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	loan, err := l.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.State != StateLost || !loan.HoldsCopy {
		return nil, fmt.Errorf("release copy of loan %s in state %s: %w", loan.ID, loan.State, ErrInvalidState)
	}

	comp := &compensations{logger: l.logger}
	updated := loan.Clone()
	if err := l.releaseCopy(ctx, updated, comp); err != nil {
		comp.rollback(ctx)
		return nil, err
	}
	now := l.now()
	event, err := newEvent(updated, EventLostCopyRelease, LostCopyReleasedEvent{
		LoanID: updated.ID,
		BookID: updated.BookID,
		At:     now,
	}, now)
	if err != nil {
		comp.rollback(ctx)
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := l.loans.UpdateLoan(ctx, updated, event); err != nil {
		comp.rollback(ctx)
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	l.logger.Info("lost copy released", "loan_id", updated.ID, "book_id", updated.BookID)
	return updated, nil
}

func (l *Ledger) releaseCopy(ctx context.Context, loan *Loan, comp *compensations) error {
	if err := l.books.AdjustBorrowedCopies(ctx, loan.BookID, -1); err != nil {
		return unavailable("release copy", err)
	}
	comp.add("borrowed copies "+loan.BookID.String(), func(ctx context.Context) error {
		return l.books.AdjustBorrowedCopies(ctx, loan.BookID, 1)
	})
	loan.HoldsCopy = false
	return nil
}

// GetLoan returns a single loan.
func (l *Ledger) GetLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	if err := requireID("loan_id", loanID); err != nil {
		return nil, err
	}
	return l.getLoan(ctx, loanID)
}

// LoanEvents returns the journal of a loan, oldest first.
func (l *Ledger) LoanEvents(ctx context.Context, loanID uuid.UUID) ([]LoanEvent, error) {
	if _, err := l.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.loans.LoanEvents(ctx, loanID)
}

// ListActiveLoansFor returns the Borrowed and Overdue loans of an actor.
func (l *Ledger) ListActiveLoansFor(ctx context.Context, actor Actor) ([]*Loan, error) {
	filter, err := actorFilter(actor)
	if err != nil {
		return nil, err
	}
	filter.States = ActiveStates
	return l.loans.ListLoans(ctx, filter)
}

// ListLoanHistoryFor returns every loan of an actor, in any state.
func (l *Ledger) ListLoanHistoryFor(ctx context.Context, actor Actor) ([]*Loan, error) {
	filter, err := actorFilter(actor)
	if err != nil {
		return nil, err
	}
	return l.loans.ListLoans(ctx, filter)
}

func actorFilter(actor Actor) (LoanFilter, error) {
	if err := requireID("actor_id", actor.ID); err != nil {
		return LoanFilter{}, err
	}
	id := actor.ID
	switch actor.Kind {
	case ActorUser:
		return LoanFilter{BorrowerID: &id}, nil
	case ActorGroup:
		return LoanFilter{GroupID: &id}, nil
	}
	return LoanFilter{}, &ValidationError{Field: "actor_kind", Message: fmt.Sprintf("unknown actor kind %q", actor.Kind)}
}

// authorize allows the borrower and any current member of the owning group.
func (l *Ledger) authorize(ctx context.Context, loan *Loan, callerID uuid.UUID) error {
	if callerID == loan.BorrowerID {
		return nil
	}
	if loan.IsGroupLoan() {
		group, err := l.eligibility.group(ctx, *loan.GroupID)
		if err != nil {
			return err
		}
		if group.HasMember(callerID) {
			return nil
		}
	}
	return ErrForbidden
}

func (l *Ledger) getLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	loan, err := l.loans.GetLoan(ctx, id)
	if errors.Is(err, ErrLoanNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("get loan", err)
	}
	return loan, nil
}

// loanKeys resolves every key a transition of loanID touches: the loan, its
// book, its owner and, for group loans, both current and snapshot members.
func (l *Ledger) loanKeys(loanID uuid.UUID) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		loan, err := l.getLoan(ctx, loanID)
		if err != nil {
			return nil, err
		}
		keys := []string{loanKey(loan.ID), bookKey(loan.BookID), userKey(loan.BorrowerID)}
		if !loan.IsGroupLoan() {
			return keys, nil
		}
		keys = append(keys, groupKey(*loan.GroupID))
		for _, s := range loan.FineShares {
			keys = append(keys, userKey(s.MemberID))
		}
		group, err := l.eligibility.group(ctx, *loan.GroupID)
		if err != nil {
			return nil, err
		}
		for _, m := range group.Members {
			keys = append(keys, userKey(m))
		}
		return keys, nil
	}
}

// lockStable locks the keys returned by resolve and checks they are still
// the right keys once held; membership can change while we wait.
func (l *Ledger) lockStable(ctx context.Context, resolve func(context.Context) ([]string, error)) (func(), error) {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		keys, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		unlock, err := l.locker.Lock(ctx, keys...)
		if err != nil {
			return nil, unavailable("acquire locks", err)
		}
		again, err := resolve(ctx)
		if err != nil {
			unlock()
			return nil, err
		}
		if sameKeys(keys, again) {
			return unlock, nil
		}
		unlock()
	}
	return nil, fmt.Errorf("lock keys kept changing: %w", ErrConcurrencyConflict)
}

func sameKeys(a, b []string) bool {
	a = slices.Compact(slices.Sorted(slices.Values(a)))
	b = slices.Compact(slices.Sorted(slices.Values(b)))
	return slices.Equal(a, b)
}

// notifyFine tells everyone who was charged for the loan. Failures are
// logged only.
func (l *Ledger) notifyFine(ctx context.Context, loan *Loan, book *Book) {
	if !loan.IsGroupLoan() {
		l.sendFine(ctx, loan.BorrowerID, loan, book, loan.FineAmount)
		return
	}
	for _, s := range loan.FineShares {
		l.sendFine(ctx, s.MemberID, loan, book, s.Amount)
	}
}

func (l *Ledger) sendFine(ctx context.Context, userID uuid.UUID, loan *Loan, book *Book, amount decimal.Decimal) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.SendFine(ctx, userID, loan, book, amount, loan.FineReason); err != nil {
		l.logger.Warn("fine notification failed", "loan_id", loan.ID, "user_id", userID, "error", err)
	}
}

// notifyOverdue tells the borrower, or every current group member.
func (l *Ledger) notifyOverdue(ctx context.Context, loan *Loan, book *Book) {
	if l.notifier == nil {
		return
	}
	recipients := []uuid.UUID{loan.BorrowerID}
	if loan.IsGroupLoan() {
		group, err := l.groups.Get(ctx, *loan.GroupID)
		if err != nil {
			l.logger.Warn("overdue notification skipped", "loan_id", loan.ID, "error", err)
			return
		}
		recipients = group.Members
	}
	for _, userID := range recipients {
		if err := l.notifier.SendOverdue(ctx, userID, loan, book); err != nil {
			l.logger.Warn("overdue notification failed", "loan_id", loan.ID, "user_id", userID, "error", err)
		}
	}
}

func (l *Ledger) finishBorrow(span trace.Span, kind string, err error) {
	defer span.End()
	outcome := "ok"
	if d, ok := AsDenial(err); ok {
		outcome = string(d.Reason)
		span.SetAttributes(attribute.String("denial.reason", outcome))
	} else if err != nil {
		outcome = "error"
		recordErr(span, err)
	}
	borrowOutcomes.WithLabelValues(kind, outcome).Inc()
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return &ValidationError{Field: field, Message: "must be a non-nil UUID"}
	}
	return nil
}
