package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"libraloan/internal/circulation"
)

// service implements the Service interface.
type service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new catalog service instance.
func NewService(store Store, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, logger: logger}
}

// AddBook creates a book with no copies on loan.
func (s *service) AddBook(ctx context.Context, in BookInput) (*circulation.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	book := in.book(uuid.New())
	if err := s.store.Put(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to add book: %w", err)
	}
	s.logger.Info("book added", "book_id", book.ID, "title", book.Title, "copies", book.TotalCopies)
	return &book, nil
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*circulation.Book, error) {
	return s.store.Get(ctx, id)
}

// UpdateBook replaces title, price and total copies. Total copies may not
// drop below the number currently on loan.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*circulation.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.TotalCopies < current.BorrowedCopies {
		return nil, fmt.Errorf("book %s has %d copies on loan: %w", id, current.BorrowedCopies, circulation.ErrCopyBounds)
	}

	if err := s.store.Put(ctx, in.book(id)); err != nil {
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return s.store.Get(ctx, id)
}

// AdjustBorrowedCopies moves the on-loan counter and returns the new record.
func (s *service) AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) (*circulation.Book, error) {
	if err := s.store.AdjustBorrowedCopies(ctx, id, delta); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}
