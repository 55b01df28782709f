package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraloan/internal/circulation"
)

// BookInput is the editable part of a catalog record. Borrowed copies are
// owned by circulation and never set here.
type BookInput struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	TotalCopies int             `json:"total_copies"`
}

func (in BookInput) validate() error {
	switch {
	case in.Title == "":
		return &circulation.ValidationError{Field: "title", Message: "required"}
	case in.Price.IsNegative():
		return &circulation.ValidationError{Field: "price", Message: "must not be negative"}
	case in.TotalCopies < 0:
		return &circulation.ValidationError{Field: "total_copies", Message: "must not be negative"}
	}
	return nil
}

func (in BookInput) book(id uuid.UUID) circulation.Book {
	return circulation.Book{
		ID:          id,
		Title:       in.Title,
		Price:       in.Price,
		TotalCopies: in.TotalCopies,
	}
}
