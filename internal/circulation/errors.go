package circulation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrLoanNotFound            = errors.New("loan not found")
	ErrBookNotFound            = errors.New("book not found")
	ErrGroupNotFound           = errors.New("group not found")
	ErrInvalidState            = errors.New("loan is in a terminal or invalid state for this operation")
	ErrAlreadyPaid             = errors.New("fine already paid")
	ErrNoFine                  = errors.New("no fine outstanding")
	ErrLoanActive              = errors.New("fine is still accruing on an active loan")
	ErrForbidden               = errors.New("caller is neither the borrower nor a member of the borrowing group")
	ErrConcurrencyConflict     = errors.New("concurrency conflict: version mismatch")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrSweepRunning            = errors.New("sweep already running")
	ErrCopyBounds              = errors.New("borrowed copies out of range")
)

// DenialReason is the stable code of an eligibility denial.
type DenialReason string

const (
	ReasonBookUnavailable         DenialReason = "BOOK_UNAVAILABLE"
	ReasonActorHasActiveLoan      DenialReason = "ACTOR_HAS_ACTIVE_LOAN"
	ReasonGroupHasActiveLoan      DenialReason = "GROUP_HAS_ACTIVE_LOAN"
	ReasonUnpaidFines             DenialReason = "UNPAID_FINES"
	ReasonNotAMember              DenialReason = "NOT_A_MEMBER"
	ReasonMemberHasFines          DenialReason = "MEMBER_HAS_FINES"
	ReasonMemberHasIndividualLoan DenialReason = "MEMBER_HAS_INDIVIDUAL_LOAN"
	ReasonGroupDisbanded          DenialReason = "GROUP_DISBANDED"
)

// Denial is an expected, user-facing refusal of a borrow request.
type Denial struct {
	Reason  DenialReason `json:"reason"`
	Message string       `json:"message"`
	Members []uuid.UUID  `json:"members,omitempty"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("borrow denied (%s): %s", d.Reason, d.Message)
}

func deny(reason DenialReason, format string, args ...any) *Denial {
	return &Denial{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsDenial extracts a denial from err, if there is one.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// ValidationError rejects malformed input before the ledger is touched.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// unavailable marks a collaborator failure as retryable.
func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaboratorUnavailable, what, err)
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
