// Package catalog serves the book records that circulation lends against:
// title, replacement price, and copy counts.
package catalog

import (
	"context"

	"github.com/google/uuid"

	"libraloan/internal/circulation"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, in BookInput) (*circulation.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*circulation.Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*circulation.Book, error)
	AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) (*circulation.Book, error)
}

// Store persists books. Both the postgres and memory stores satisfy it.
type Store interface {
	Put(ctx context.Context, book circulation.Book) error
	Get(ctx context.Context, id uuid.UUID) (*circulation.Book, error)
	AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) error
}
