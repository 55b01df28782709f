// Package membership serves borrowing groups and each user's running fine
// balance to the circulation service.
package membership

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraloan/internal/circulation"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterGroup(ctx context.Context, in GroupInput) (*circulation.Group, error)
	UpdateGroup(ctx context.Context, id uuid.UUID, in GroupInput) (*circulation.Group, error)
	DisbandGroup(ctx context.Context, id uuid.UUID) error
	GetGroup(ctx context.Context, id uuid.UUID) (*circulation.Group, error)
	GroupForUser(ctx context.Context, userID uuid.UUID) (*circulation.Group, error)
	AdjustGroupFines(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error
}

// GroupStore persists groups. Both the postgres and memory stores satisfy it.
type GroupStore interface {
	circulation.Groups
	Put(ctx context.Context, group circulation.Group) error
}
