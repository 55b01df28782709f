package membership

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"libraloan/internal/circulation"
)

// service implements the Service interface.
type service struct {
	groups      GroupStore
	balances    circulation.Balances
	rateLimiter *rate.Limiter
	logger      *slog.Logger

	// mu keeps the one-active-group check and the write together.
	mu sync.Mutex
}

// NewService creates a new membership service instance. A nil limiter allows
// five group registrations per minute.
func NewService(groups GroupStore, balances circulation.Balances, limiter *rate.Limiter, logger *slog.Logger) Service {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(1*time.Minute), 5)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		groups:      groups,
		balances:    balances,
		rateLimiter: limiter,
		logger:      logger,
	}
}

// RegisterGroup creates a group. No member may already belong to another
// active group.
func (s *service) RegisterGroup(ctx context.Context, in GroupInput) (*circulation.Group, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	group, err := in.group(uuid.New())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkExclusive(ctx, &group); err != nil {
		return nil, err
	}
	if err := s.groups.Put(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to register group: %w", err)
	}
	s.logger.Info("group registered", "group_id", group.ID, "members", len(group.Members))
	return s.groups.Get(ctx, group.ID)
}

// UpdateGroup replaces name, leader and member list. Fines already charged
// stay on the group.
func (s *service) UpdateGroup(ctx context.Context, id uuid.UUID, in GroupInput) (*circulation.Group, error) {
	group, err := in.group(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Disbanded {
		return nil, fmt.Errorf("group %s is disbanded: %w", id, circulation.ErrInvalidState)
	}
	group.TotalFines = current.TotalFines

	if err := s.checkExclusive(ctx, &group); err != nil {
		return nil, err
	}
	if err := s.groups.Put(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	return s.groups.Get(ctx, id)
}

func (s *service) DisbandGroup(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.groups.Get(ctx, id)
	if err != nil {
		return err
	}
	if group.Disbanded {
		return nil
	}
	group.Disbanded = true
	if err := s.groups.Put(ctx, *group); err != nil {
		return fmt.Errorf("failed to disband group: %w", err)
	}
	s.logger.Info("group disbanded", "group_id", id)
	return nil
}

func (s *service) checkExclusive(ctx context.Context, group *circulation.Group) error {
	for _, m := range group.Members {
		other, err := s.groups.FindActiveForUser(ctx, m)
		if err != nil {
			return err
		}
		if other != nil && other.ID != group.ID {
			return fmt.Errorf("member %s is in group %s: %w", m, other.ID, ErrAlreadyInGroup)
		}
	}
	return nil
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (*circulation.Group, error) {
	return s.groups.Get(ctx, id)
}

// GroupForUser returns circulation.ErrGroupNotFound when the user is in no
// active group.
func (s *service) GroupForUser(ctx context.Context, userID uuid.UUID) (*circulation.Group, error) {
	group, err := s.groups.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, circulation.ErrGroupNotFound
	}
	return group, nil
}

func (s *service) AdjustGroupFines(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return s.groups.AdjustTotalFines(ctx, id, delta)
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.balances.Get(ctx, userID)
}

func (s *service) AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	if userID == uuid.Nil {
		return &circulation.ValidationError{Field: "user_id", Message: "required"}
	}
	return s.balances.Adjust(ctx, userID, delta)
}
