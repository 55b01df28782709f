package circulation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanState is the lifecycle state of a loan.
type LoanState string

const (
	StateBorrowed LoanState = "borrowed"
	StateOverdue  LoanState = "overdue"
	StateReturned LoanState = "returned"
	StateLost     LoanState = "lost"
	StateDamaged  LoanState = "damaged"
)

// ActiveStates are the states in which a loan counts against the
// one-active-loan rule.
var ActiveStates = []LoanState{StateBorrowed, StateOverdue}

// Active reports whether the loan is still out.
func (s LoanState) Active() bool {
	return s == StateBorrowed || s == StateOverdue
}

// Terminal reports whether no further fine accrual happens in this state.
func (s LoanState) Terminal() bool {
	return s == StateReturned || s == StateLost || s == StateDamaged
}

func (s LoanState) Valid() bool {
	return s.Active() || s.Terminal()
}

// Condition describes the state of a book when it comes back.
type Condition string

const (
	ConditionNone        Condition = ""
	ConditionGood        Condition = "good"
	ConditionMinorDamage Condition = "minor_damage"
	ConditionMajorDamage Condition = "major_damage"
	ConditionLost        Condition = "lost"
)

// ParseCondition validates a condition supplied by a caller.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionGood, ConditionMinorDamage, ConditionMajorDamage, ConditionLost:
		return c, nil
	}
	return ConditionNone, &ValidationError{Field: "condition", Message: fmt.Sprintf("unknown condition %q", s)}
}

// terminalState is the state a loan enters when returned in condition c.
func (c Condition) terminalState() LoanState {
	switch c {
	case ConditionLost:
		return StateLost
	case ConditionMajorDamage:
		return StateDamaged
	default:
		return StateReturned
	}
}

// FineReason is the policy branch that produced a fine.
type FineReason string

const (
	FineReasonNone                 FineReason = ""
	FineReasonMinorDamage          FineReason = "minor_damage"
	FineReasonMajorDamage          FineReason = "major_damage"
	FineReasonLostWithinPeriod     FineReason = "lost_within_period"
	FineReasonMissingAfterDeadline FineReason = "missing_after_deadline"
)

// FineShare is one member's portion of a group fine. The slice of shares on a
// loan is the membership snapshot taken when the fine was first assessed.
type FineShare struct {
	MemberID uuid.UUID       `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// Loan is a book lent to a user, optionally on behalf of a group.
type Loan struct {
	ID         uuid.UUID       `json:"id"`
	BookID     uuid.UUID       `json:"book_id"`
	BorrowerID uuid.UUID       `json:"borrower_id"`
	GroupID    *uuid.UUID      `json:"group_id,omitempty"`
	BorrowedAt time.Time       `json:"borrowed_at"`
	DueAt      time.Time       `json:"due_at"`
	ReturnedAt *time.Time      `json:"returned_at,omitempty"`
	State      LoanState       `json:"state"`
	Condition  Condition       `json:"condition,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	FineAmount decimal.Decimal `json:"fine_amount"`
	FineReason FineReason      `json:"fine_reason,omitempty"`
	FinePaid   bool            `json:"fine_paid"`
	FinePaidAt *time.Time      `json:"fine_paid_at,omitempty"`
	FineShares []FineShare     `json:"fine_shares,omitempty"`
	HoldsCopy  bool            `json:"holds_copy"`
	Version    int             `json:"version"`
}

// IsGroupLoan reports whether the loan is owned by a group.
func (l *Loan) IsGroupLoan() bool {
	return l.GroupID != nil
}

// Owner returns the actor the one-active-loan rule is applied to.
func (l *Loan) Owner() Actor {
	if l.GroupID != nil {
		return GroupActor(*l.GroupID)
	}
	return UserActor(l.BorrowerID)
}

// UnpaidFine is the part of the recorded fine still owed.
func (l *Loan) UnpaidFine() decimal.Decimal {
	if l.FinePaid {
		return decimal.Zero
	}
	return l.FineAmount
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (l *Loan) Clone() *Loan {
	c := *l
	if l.GroupID != nil {
		g := *l.GroupID
		c.GroupID = &g
	}
	if l.ReturnedAt != nil {
		t := *l.ReturnedAt
		c.ReturnedAt = &t
	}
	if l.FinePaidAt != nil {
		t := *l.FinePaidAt
		c.FinePaidAt = &t
	}
	if l.FineShares != nil {
		c.FineShares = append([]FineShare(nil), l.FineShares...)
	}
	return &c
}

// ActorKind distinguishes individual and group borrowing.
type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorGroup ActorKind = "group"
)

// Actor is the unit the one-active-loan rule applies to.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func UserActor(id uuid.UUID) Actor  { return Actor{Kind: ActorUser, ID: id} }
func GroupActor(id uuid.UUID) Actor { return Actor{Kind: ActorGroup, ID: id} }

func (a Actor) String() string {
	return string(a.Kind) + ":" + a.ID.String()
}

// Book is the slice of a catalog item the ledger needs.
type Book struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	TotalCopies    int             `json:"total_copies"`
	BorrowedCopies int             `json:"borrowed_copies"`
}

// Available is the number of copies that can still be lent.
func (b *Book) Available() int {
	return b.TotalCopies - b.BorrowedCopies
}

// Group is a borrowing group of 3 to 6 members.
type Group struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Members    []uuid.UUID     `json:"members"`
	LeaderID   uuid.UUID       `json:"leader_id"`
	MaxMembers int             `json:"max_members"`
	TotalFines decimal.Decimal `json:"total_fines"`
	Disbanded  bool            `json:"disbanded"`
}

// HasMember reports whether userID currently belongs to the group.
func (g *Group) HasMember(userID uuid.UUID) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// OrderedMembers returns the members with the leader first, keeping the
// stored order for everyone else.
func (g *Group) OrderedMembers() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(g.Members))
	if g.HasMember(g.LeaderID) {
		out = append(out, g.LeaderID)
	}
	for _, m := range g.Members {
		if m != g.LeaderID {
			out = append(out, m)
		}
	}
	return out
}

// LoanEvent is an entry in a loan's append-only journal.
type LoanEvent struct {
	ID        int64           `json:"id"`
	LoanID    uuid.UUID       `json:"loan_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	EventLoanCreated     = "LoanCreated"
	EventLoanReturned    = "LoanReturned"
	EventLoanOverdue     = "LoanOverdue"
	EventFineAccrued     = "FineAccrued"
	EventLoanLost        = "LoanLost"
	EventFinePaid        = "FinePaid"
	EventLostCopyRelease = "LostCopyReleased"
)

// LoanFilter narrows ListLoans. Zero-valued fields do not filter.
type LoanFilter struct {
	BorrowerID     *uuid.UUID
	GroupID        *uuid.UUID
	BookID         *uuid.UUID
	IndividualOnly bool
	States         []LoanState
	DueBefore      *time.Time
	HoldsCopy      *bool
}

// Match is the reference implementation of the filter, used by in-memory
// stores.
func (f LoanFilter) Match(l *Loan) bool {
	if f.BorrowerID != nil && l.BorrowerID != *f.BorrowerID {
		return false
	}
	if f.GroupID != nil && (l.GroupID == nil || *l.GroupID != *f.GroupID) {
		return false
	}
	if f.BookID != nil && l.BookID != *f.BookID {
		return false
	}
	if f.IndividualOnly && l.GroupID != nil {
		return false
	}
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if l.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.DueBefore != nil && !l.DueAt.Before(*f.DueBefore) {
		return false
	}
	if f.HoldsCopy != nil && l.HoldsCopy != *f.HoldsCopy {
		return false
	}
	return true
}
