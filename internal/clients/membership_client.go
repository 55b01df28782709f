package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraloan/internal/circulation"
)

// MembershipClient implements circulation.Groups and circulation.Balances
// against the membership service.
type MembershipClient struct {
	*remote
}

func NewMembershipClient(baseURL string, logger *slog.Logger) *MembershipClient {
	return &MembershipClient{remote: newRemote("membership", baseURL, logger)}
}

type deltaRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

func (c *MembershipClient) Get(ctx context.Context, id uuid.UUID) (*circulation.Group, error) {
	var group circulation.Group
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%s", id), nil, &group)
	if IsStatus(err, http.StatusNotFound) {
		return nil, circulation.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// FindActiveForUser returns nil, nil when the user belongs to no active group.
func (c *MembershipClient) FindActiveForUser(ctx context.Context, userID uuid.UUID) (*circulation.Group, error) {
	var group circulation.Group
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%s/group", userID), nil, &group)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *MembershipClient) AdjustTotalFines(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%s/fines", id), deltaRequest{Delta: delta}, nil)
	if IsStatus(err, http.StatusNotFound) {
		return circulation.ErrGroupNotFound
	}
	return err
}

// Balances adapts the client to circulation.Balances, whose Get collides
// with the group lookup.
func (c *MembershipClient) Balances() circulation.Balances {
	return memberBalances{c}
}

type memberBalances struct {
	c *MembershipClient
}

func (b memberBalances) Get(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	err := b.c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%s/balance", userID), nil, &resp)
	if IsStatus(err, http.StatusNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

func (b memberBalances) Adjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	return b.c.do(ctx, http.MethodPost, fmt.Sprintf("/users/%s/balance", userID), deltaRequest{Delta: delta}, nil)
}

var _ circulation.Groups = (*MembershipClient)(nil)
