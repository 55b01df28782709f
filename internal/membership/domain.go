package membership

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"libraloan/internal/circulation"
)

var (
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrAlreadyInGroup = errors.New("user already belongs to another active group")
)

// GroupInput is a group as an administrator registers or edits it. The first
// member leads when LeaderID is unset.
type GroupInput struct {
	Name       string      `json:"name"`
	Members    []uuid.UUID `json:"members"`
	LeaderID   uuid.UUID   `json:"leader_id"`
	MaxMembers int         `json:"max_members"`
}

func (in GroupInput) group(id uuid.UUID) (circulation.Group, error) {
	g := circulation.Group{
		ID:         id,
		Name:       in.Name,
		Members:    in.Members,
		LeaderID:   in.LeaderID,
		MaxMembers: in.MaxMembers,
	}
	if g.MaxMembers == 0 {
		g.MaxMembers = 6
	}
	if g.LeaderID == uuid.Nil && len(g.Members) > 0 {
		g.LeaderID = g.Members[0]
	}

	switch {
	case g.Name == "":
		return g, &circulation.ValidationError{Field: "name", Message: "required"}
	case g.MaxMembers < 3 || g.MaxMembers > 6:
		return g, &circulation.ValidationError{Field: "max_members", Message: "must be between 3 and 6"}
	case len(g.Members) < 3 || len(g.Members) > g.MaxMembers:
		return g, &circulation.ValidationError{Field: "members", Message: fmt.Sprintf("need 3 to %d members", g.MaxMembers)}
	case !g.HasMember(g.LeaderID):
		return g, &circulation.ValidationError{Field: "leader_id", Message: "leader must be a member"}
	}
	seen := make(map[uuid.UUID]bool, len(g.Members))
	for _, m := range g.Members {
		if m == uuid.Nil || seen[m] {
			return g, &circulation.ValidationError{Field: "members", Message: fmt.Sprintf("invalid or duplicate member %s", m)}
		}
		seen[m] = true
	}
	return g, nil
}
