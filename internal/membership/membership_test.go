package membership

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"libraloan/internal/circulation"
	"libraloan/internal/store/memory"
)

func newTestService() Service {
	return NewService(memory.NewGroups(), memory.NewBalances(), rate.NewLimiter(rate.Inf, 0), nil)
}

func members(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestRegisterGroup(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	ms := members(4)

	g, err := svc.RegisterGroup(ctx, GroupInput{Name: "Readers", Members: ms})
	require.NoError(t, err)
	assert.Equal(t, ms[0], g.LeaderID)
	assert.Equal(t, 6, g.MaxMembers)

	found, err := svc.GroupForUser(ctx, ms[3])
	require.NoError(t, err)
	assert.Equal(t, g.ID, found.ID)

	_, err = svc.GroupForUser(ctx, uuid.New())
	assert.ErrorIs(t, err, circulation.ErrGroupNotFound)

	_, err = svc.RegisterGroup(ctx, GroupInput{Name: "Poachers", Members: []uuid.UUID{ms[1], uuid.New(), uuid.New()}})
	assert.ErrorIs(t, err, ErrAlreadyInGroup)
}

func TestRegisterGroupValidation(t *testing.T) {
	ms := members(7)
	tests := []struct {
		name  string
		in    GroupInput
		field string
	}{
		{"no name", GroupInput{Members: ms[:3]}, "name"},
		{"too few", GroupInput{Name: "g", Members: ms[:2]}, "members"},
		{"too many", GroupInput{Name: "g", Members: ms}, "members"},
		{"over own cap", GroupInput{Name: "g", Members: ms[:4], MaxMembers: 3}, "members"},
		{"cap out of range", GroupInput{Name: "g", Members: ms[:3], MaxMembers: 8}, "max_members"},
		{"outside leader", GroupInput{Name: "g", Members: ms[:3], LeaderID: ms[5]}, "leader_id"},
		{"duplicate", GroupInput{Name: "g", Members: []uuid.UUID{ms[0], ms[1], ms[1]}}, "members"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService().RegisterGroup(context.Background(), tt.in)
			var verr *circulation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegisterGroupIsRateLimited(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewGroups(), memory.NewBalances(), rate.NewLimiter(0, 1), nil)

	_, err := svc.RegisterGroup(ctx, GroupInput{Name: "first", Members: members(3)})
	require.NoError(t, err)
	_, err = svc.RegisterGroup(ctx, GroupInput{Name: "second", Members: members(3)})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestUpdateAndDisbandGroup(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	ms := members(3)
	g, err := svc.RegisterGroup(ctx, GroupInput{Name: "Readers", Members: ms})
	require.NoError(t, err)
	require.NoError(t, svc.AdjustGroupFines(ctx, g.ID, decimal.NewFromInt(250)))

	joiner := uuid.New()
	updated, err := svc.UpdateGroup(ctx, g.ID, GroupInput{Name: "Readers", Members: []uuid.UUID{ms[0], ms[1], joiner}, LeaderID: ms[1]})
	require.NoError(t, err)
	assert.Equal(t, ms[1], updated.LeaderID)
	assert.True(t, updated.HasMember(joiner))
	assert.False(t, updated.HasMember(ms[2]))
	assert.True(t, updated.TotalFines.Equal(decimal.NewFromInt(250)))

	require.NoError(t, svc.DisbandGroup(ctx, g.ID))
	require.NoError(t, svc.DisbandGroup(ctx, g.ID))
	_, err = svc.GroupForUser(ctx, joiner)
	assert.ErrorIs(t, err, circulation.ErrGroupNotFound)
	_, err = svc.UpdateGroup(ctx, g.ID, GroupInput{Name: "Readers", Members: ms})
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	// Former members are free to form a new group.
	_, err = svc.RegisterGroup(ctx, GroupInput{Name: "Again", Members: ms})
	assert.NoError(t, err)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	user := uuid.New()

	require.NoError(t, svc.AdjustBalance(ctx, user, decimal.RequireFromString("83.34")))
	b, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, b.Equal(decimal.RequireFromString("83.34")))

	var verr *circulation.ValidationError
	assert.ErrorAs(t, svc.AdjustBalance(ctx, uuid.Nil, decimal.NewFromInt(1)), &verr)
}
