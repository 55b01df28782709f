// Package postgres persists loans, books, groups and fine balances in
// PostgreSQL. Loan writes and their journal entries commit together under
// serializable isolation with an optimistic version check.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraloan/internal/circulation"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
)

// Store is the Postgres backing for every circulation collaborator except
// the notifier.
type Store struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// New wraps an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{
		db:     sqlx.NewDb(db, "postgres"),
		tracer: otel.Tracer("libraloan/store/postgres"),
	}
}

// Loans returns the loan store view.
func (s *Store) Loans() *Loans { return &Loans{s} }

// Books returns the catalog view.
func (s *Store) Books() *Books { return &Books{s} }

// Groups returns the membership view.
func (s *Store) Groups() *Groups { return &Groups{s} }

// Balances returns the fine balance view.
func (s *Store) Balances() *Balances { return &Balances{s} }

// Loans implements circulation.LoanStore.
type Loans struct{ *Store }

type loanRow struct {
	ID         uuid.UUID       `db:"id"`
	BookID     uuid.UUID       `db:"book_id"`
	BorrowerID uuid.UUID       `db:"borrower_id"`
	GroupID    uuid.NullUUID   `db:"group_id"`
	BorrowedAt time.Time       `db:"borrowed_at"`
	DueAt      time.Time       `db:"due_at"`
	ReturnedAt sql.NullTime    `db:"returned_at"`
	State      string          `db:"state"`
	Condition  string          `db:"condition"`
	Notes      string          `db:"notes"`
	FineAmount decimal.Decimal `db:"fine_amount"`
	FineReason string          `db:"fine_reason"`
	FinePaid   bool            `db:"fine_paid"`
	FinePaidAt sql.NullTime    `db:"fine_paid_at"`
	FineShares string          `db:"fine_shares"`
	HoldsCopy  bool            `db:"holds_copy"`
	Version    int             `db:"version"`
}

const loanColumns = `id, book_id, borrower_id, group_id, borrowed_at, due_at, returned_at, state, condition,
	notes, fine_amount, fine_reason, fine_paid, fine_paid_at, fine_shares, holds_copy, version`

func toRow(l *circulation.Loan) (loanRow, error) {
	shares := l.FineShares
	if shares == nil {
		shares = []circulation.FineShare{}
	}
	sharesJSON, err := json.Marshal(shares)
	if err != nil {
		return loanRow{}, fmt.Errorf("marshal fine shares: %w", err)
	}
	row := loanRow{
		ID:         l.ID,
		BookID:     l.BookID,
		BorrowerID: l.BorrowerID,
		BorrowedAt: l.BorrowedAt,
		DueAt:      l.DueAt,
		State:      string(l.State),
		Condition:  string(l.Condition),
		Notes:      l.Notes,
		FineAmount: l.FineAmount,
		FineReason: string(l.FineReason),
		FinePaid:   l.FinePaid,
		FineShares: string(sharesJSON),
		HoldsCopy:  l.HoldsCopy,
		Version:    l.Version,
	}
	if l.GroupID != nil {
		row.GroupID = uuid.NullUUID{UUID: *l.GroupID, Valid: true}
	}
	if l.ReturnedAt != nil {
		row.ReturnedAt = sql.NullTime{Time: *l.ReturnedAt, Valid: true}
	}
	if l.FinePaidAt != nil {
		row.FinePaidAt = sql.NullTime{Time: *l.FinePaidAt, Valid: true}
	}
	return row, nil
}

func (r loanRow) toLoan() (*circulation.Loan, error) {
	l := &circulation.Loan{
		ID:         r.ID,
		BookID:     r.BookID,
		BorrowerID: r.BorrowerID,
		BorrowedAt: r.BorrowedAt.UTC(),
		DueAt:      r.DueAt.UTC(),
		State:      circulation.LoanState(r.State),
		Condition:  circulation.Condition(r.Condition),
		Notes:      r.Notes,
		FineAmount: r.FineAmount,
		FineReason: circulation.FineReason(r.FineReason),
		FinePaid:   r.FinePaid,
		HoldsCopy:  r.HoldsCopy,
		Version:    r.Version,
	}
	if !l.State.Valid() {
		return nil, fmt.Errorf("loan %s: unknown state %q", r.ID, r.State)
	}
	if r.GroupID.Valid {
		g := r.GroupID.UUID
		l.GroupID = &g
	}
	if r.ReturnedAt.Valid {
		t := r.ReturnedAt.Time.UTC()
		l.ReturnedAt = &t
	}
	if r.FinePaidAt.Valid {
		t := r.FinePaidAt.Time.UTC()
		l.FinePaidAt = &t
	}
	if len(r.FineShares) > 0 {
		if err := json.Unmarshal([]byte(r.FineShares), &l.FineShares); err != nil {
			return nil, fmt.Errorf("loan %s: unmarshal fine shares: %w", r.ID, err)
		}
		if len(l.FineShares) == 0 {
			l.FineShares = nil
		}
	}
	return l, nil
}

// CreateLoan inserts the loan and its first journal entry atomically.
func (s *Loans) CreateLoan(ctx context.Context, loan *circulation.Loan, event circulation.LoanEvent) error {
	ctx, span := s.tracer.Start(ctx, "postgres.create_loan", trace.WithAttributes(
		attribute.String("loan.id", loan.ID.String()),
	))
	defer span.End()

	row, err := toRow(loan)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO loans (`+loanColumns+`)
			VALUES (:id, :book_id, :borrower_id, :group_id, :borrowed_at, :due_at, :returned_at, :state, :condition,
				:notes, :fine_amount, :fine_reason, :fine_paid, :fine_paid_at, :fine_shares, :holds_copy, :version)
		`, row)
		if err != nil {
			return mapErr(fmt.Errorf("insert loan: %w", err))
		}
		return appendEvent(ctx, tx, event)
	})
}

// UpdateLoan writes loan if the stored version still equals loan.Version,
// then bumps loan.Version.
func (s *Loans) UpdateLoan(ctx context.Context, loan *circulation.Loan, event circulation.LoanEvent) error {
	ctx, span := s.tracer.Start(ctx, "postgres.update_loan", trace.WithAttributes(
		attribute.String("loan.id", loan.ID.String()),
		attribute.Int("expected.version", loan.Version),
	))
	defer span.End()

	row, err := toRow(loan)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE loans
			SET returned_at = :returned_at, state = :state, condition = :condition, notes = :notes,
				fine_amount = :fine_amount, fine_reason = :fine_reason, fine_paid = :fine_paid,
				fine_paid_at = :fine_paid_at, fine_shares = :fine_shares, holds_copy = :holds_copy,
				version = version + 1, updated_at = NOW()
			WHERE id = :id AND version = :version
		`, row)
		if err != nil {
			return mapErr(fmt.Errorf("update loan: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, loan.ID); err != nil {
				return err
			}
			if !exists {
				return circulation.ErrLoanNotFound
			}
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return circulation.ErrConcurrencyConflict
		}
		return appendEvent(ctx, tx, event)
	})
	if err != nil {
		return err
	}
	loan.Version++
	return nil
}

func appendEvent(ctx context.Context, tx *sqlx.Tx, event circulation.LoanEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loan_events (loan_id, event_type, event_data, version, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.LoanID, event.Type, string(event.Data), event.Version, event.CreatedAt.UTC())
	if err != nil {
		return mapErr(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

func (s *Loans) GetLoan(ctx context.Context, id uuid.UUID) (*circulation.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.get_loan")
	defer span.End()

	var row loanRow
	err := s.db.GetContext(ctx, &row, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circulation.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return row.toLoan()
}

func (s *Loans) ListLoans(ctx context.Context, filter circulation.LoanFilter) ([]*circulation.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.list_loans")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.BorrowerID != nil {
		add("borrower_id = $%d", *filter.BorrowerID)
	}
	if filter.GroupID != nil {
		add("group_id = $%d", *filter.GroupID)
	}
	if filter.BookID != nil {
		add("book_id = $%d", *filter.BookID)
	}
	if filter.IndividualOnly {
		where = append(where, "group_id IS NULL")
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, st := range filter.States {
			states[i] = string(st)
		}
		add("state = ANY($%d)", pq.Array(states))
	}
	if filter.DueBefore != nil {
		add("due_at < $%d", filter.DueBefore.UTC())
	}
	if filter.HoldsCopy != nil {
		add("holds_copy = $%d", *filter.HoldsCopy)
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY borrowed_at ASC, id ASC"

	var rows []loanRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	loans := make([]*circulation.Loan, 0, len(rows))
	for _, r := range rows {
		l, err := r.toLoan()
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	span.SetAttributes(attribute.Int("loans.listed", len(loans)))
	return loans, nil
}

func (s *Loans) LoanEvents(ctx context.Context, id uuid.UUID) ([]circulation.LoanEvent, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.loan_events")
	defer span.End()

	var rows []struct {
		ID        int64     `db:"id"`
		LoanID    uuid.UUID `db:"loan_id"`
		Type      string    `db:"event_type"`
		Data      []byte    `db:"event_data"`
		Version   int       `db:"version"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, loan_id, event_type, event_data, version, created_at
		FROM loan_events
		WHERE loan_id = $1
		ORDER BY version ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	events := make([]circulation.LoanEvent, len(rows))
	for i, r := range rows {
		events[i] = circulation.LoanEvent{
			ID:        r.ID,
			LoanID:    r.LoanID,
			Type:      r.Type,
			Data:      json.RawMessage(r.Data),
			Version:   r.Version,
			CreatedAt: r.CreatedAt.UTC(),
		}
	}
	return events, nil
}

func (s *Loans) LoanBookIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT book_id FROM loans ORDER BY book_id`); err != nil {
		return nil, fmt.Errorf("list lent books: %w", err)
	}
	return ids, nil
}

// inTx runs fn in a serializable transaction.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// mapErr turns constraint and serialization races into the ledger's
// concurrency conflict.
func mapErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation, codeSerializationFailure:
			return fmt.Errorf("%w: %s", circulation.ErrConcurrencyConflict, pqErr.Message)
		}
	}
	return err
}

var _ circulation.LoanStore = (*Loans)(nil)
