package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraloan/internal/circulation"
)

var ErrCopyBounds = circulation.ErrCopyBounds

// Books implements circulation.Books over the books table.
type Books struct{ *Store }

// Put inserts or replaces a book's catalog fields. Borrowed copies are left
// alone on update; only the ledger moves them.
func (s *Books) Put(ctx context.Context, book circulation.Book) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, price, total_copies, borrowed_copies)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, price = EXCLUDED.price, total_copies = EXCLUDED.total_copies, updated_at = NOW()
	`, book.ID, book.Title, book.Price, book.TotalCopies, book.BorrowedCopies)
	if err != nil {
		return fmt.Errorf("put book: %w", err)
	}
	return nil
}

func (s *Books) Get(ctx context.Context, id uuid.UUID) (*circulation.Book, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.get_book")
	defer span.End()

	var row struct {
		ID             uuid.UUID       `db:"id"`
		Title          string          `db:"title"`
		Price          decimal.Decimal `db:"price"`
		TotalCopies    int             `db:"total_copies"`
		BorrowedCopies int             `db:"borrowed_copies"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT id, title, price, total_copies, borrowed_copies
		FROM books
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circulation.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &circulation.Book{
		ID:             row.ID,
		Title:          row.Title,
		Price:          row.Price,
		TotalCopies:    row.TotalCopies,
		BorrowedCopies: row.BorrowedCopies,
	}, nil
}

// AdjustBorrowedCopies applies delta in a single guarded statement, so the
// counter can never leave [0, total_copies].
func (s *Books) AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) error {
	ctx, span := s.tracer.Start(ctx, "postgres.adjust_borrowed_copies")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE books
		SET borrowed_copies = borrowed_copies + $2, updated_at = NOW()
		WHERE id = $1 AND borrowed_copies + $2 BETWEEN 0 AND total_copies
	`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust borrowed copies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("book %s delta %d: %w", id, delta, ErrCopyBounds)
	}
	return nil
}

// Groups implements circulation.Groups over borrowing_groups and
// group_members.
type Groups struct{ *Store }

type groupRow struct {
	ID         uuid.UUID       `db:"id"`
	Name       string          `db:"name"`
	LeaderID   uuid.UUID       `db:"leader_id"`
	MaxMembers int             `db:"max_members"`
	TotalFines decimal.Decimal `db:"total_fines"`
	Disbanded  bool            `db:"disbanded"`
}

// Put inserts or replaces a group and its ordered member list.
func (s *Groups) Put(ctx context.Context, group circulation.Group) error {
	if n := len(group.Members); n < 3 || n > 6 {
		return fmt.Errorf("group %s: %d members outside 3-6", group.ID, n)
	}
	if !slices.Contains(group.Members, group.LeaderID) {
		return fmt.Errorf("group %s: leader %s is not a member", group.ID, group.LeaderID)
	}
	if group.MaxMembers == 0 {
		group.MaxMembers = 6
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO borrowing_groups (id, name, leader_id, max_members, disbanded)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, leader_id = EXCLUDED.leader_id,
			max_members = EXCLUDED.max_members, disbanded = EXCLUDED.disbanded
	`, group.ID, group.Name, group.LeaderID, group.MaxMembers, group.Disbanded)
	if err != nil {
		return fmt.Errorf("put group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, group.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for i, m := range group.Members {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, position) VALUES ($1, $2, $3)
		`, group.ID, m, i)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Groups) Get(ctx context.Context, id uuid.UUID) (*circulation.Group, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.get_group")
	defer span.End()

	var row groupRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, leader_id, max_members, total_fines, disbanded
		FROM borrowing_groups
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circulation.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return s.withMembers(ctx, row)
}

func (s *Groups) FindActiveForUser(ctx context.Context, userID uuid.UUID) (*circulation.Group, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.find_group_for_user")
	defer span.End()

	var row groupRow
	err := s.db.GetContext(ctx, &row, `
		SELECT g.id, g.name, g.leader_id, g.max_members, g.total_fines, g.disbanded
		FROM borrowing_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1 AND NOT g.disbanded
		ORDER BY g.created_at ASC
		LIMIT 1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group for user: %w", err)
	}
	return s.withMembers(ctx, row)
}

func (s *Groups) withMembers(ctx context.Context, row groupRow) (*circulation.Group, error) {
	var members []uuid.UUID
	err := s.db.SelectContext(ctx, &members, `
		SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY position ASC
	`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return &circulation.Group{
		ID:         row.ID,
		Name:       row.Name,
		Members:    members,
		LeaderID:   row.LeaderID,
		MaxMembers: row.MaxMembers,
		TotalFines: row.TotalFines,
		Disbanded:  row.Disbanded,
	}, nil
}

func (s *Groups) AdjustTotalFines(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE borrowing_groups SET total_fines = total_fines + $2 WHERE id = $1
	`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust group fines: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return circulation.ErrGroupNotFound
	}
	return nil
}

// Balances implements circulation.Balances over fine_balances.
type Balances struct{ *Store }

func (s *Balances) Get(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.GetContext(ctx, &balance, `SELECT balance FROM fine_balances WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (s *Balances) Adjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fine_balances (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = fine_balances.balance + EXCLUDED.balance, updated_at = NOW()
	`, userID, delta)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return nil
}

var (
	_ circulation.Books    = (*Books)(nil)
	_ circulation.Groups   = (*Groups)(nil)
	_ circulation.Balances = (*Balances)(nil)
)
