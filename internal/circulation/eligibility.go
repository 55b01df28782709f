package circulation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Eligibility decides whether a borrow request may proceed. It only reads;
// callers that act on an Ok must hold the book and actor locks while both
// checking and reserving.
type Eligibility struct {
	loans    LoanStore
	books    Books
	groups   Groups
	balances Balances
}

func NewEligibility(loans LoanStore, books Books, groups Groups, balances Balances) *Eligibility {
	return &Eligibility{loans: loans, books: books, groups: groups, balances: balances}
}

// CanBorrowIndividual returns nil, nil when userID may borrow bookID alone.
func (e *Eligibility) CanBorrowIndividual(ctx context.Context, userID, bookID uuid.UUID) (*Denial, error) {
	book, err := e.book(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.Available() <= 0 {
		return deny(ReasonBookUnavailable, "no copies of %q are available", book.Title), nil
	}

	active, err := e.activeLoans(ctx, LoanFilter{BorrowerID: &userID, IndividualOnly: true})
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return deny(ReasonActorHasActiveLoan, "user already has active loan %s", active[0].ID), nil
	}

	group, err := e.groups.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, unavailable("find group for user", err)
	}
	if group != nil {
		groupLoans, err := e.activeLoans(ctx, LoanFilter{GroupID: &group.ID})
		if err != nil {
			return nil, err
		}
		if len(groupLoans) > 0 {
			return deny(ReasonGroupHasActiveLoan, "user's group %q has active loan %s", group.Name, groupLoans[0].ID), nil
		}
	}

	balance, err := e.balances.Get(ctx, userID)
	if err != nil {
		return nil, unavailable("get balance", err)
	}
	if balance.IsPositive() {
		return deny(ReasonUnpaidFines, "user has unpaid fines of %s", balance.StringFixed(2)), nil
	}
	return nil, nil
}

// CanBorrowGroup returns nil, nil when userID may borrow bookID on behalf of
// groupID.
func (e *Eligibility) CanBorrowGroup(ctx context.Context, userID, groupID, bookID uuid.UUID) (*Denial, error) {
	book, err := e.book(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.Available() <= 0 {
		return deny(ReasonBookUnavailable, "no copies of %q are available", book.Title), nil
	}

	group, err := e.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Disbanded {
		return deny(ReasonGroupDisbanded, "group %q has been disbanded", group.Name), nil
	}
	if !group.HasMember(userID) {
		return deny(ReasonNotAMember, "user is not a member of group %q", group.Name), nil
	}

	groupLoans, err := e.activeLoans(ctx, LoanFilter{GroupID: &groupID})
	if err != nil {
		return nil, err
	}
	if len(groupLoans) > 0 {
		return deny(ReasonGroupHasActiveLoan, "group %q already has active loan %s", group.Name, groupLoans[0].ID), nil
	}

	var fined []uuid.UUID
	for _, m := range group.Members {
		balance, err := e.balances.Get(ctx, m)
		if err != nil {
			return nil, unavailable("get balance", err)
		}
		if balance.IsPositive() {
			fined = append(fined, m)
		}
	}
	if len(fined) > 0 {
		d := deny(ReasonMemberHasFines, "members with unpaid fines: %s", joinIDs(fined))
		d.Members = fined
		return d, nil
	}

	var holding []uuid.UUID
	for _, m := range group.Members {
		member := m
		loans, err := e.activeLoans(ctx, LoanFilter{BorrowerID: &member, IndividualOnly: true})
		if err != nil {
			return nil, err
		}
		if len(loans) > 0 {
			holding = append(holding, m)
		}
	}
	if len(holding) > 0 {
		d := deny(ReasonMemberHasIndividualLoan, "members with individual loans: %s", joinIDs(holding))
		d.Members = holding
		return d, nil
	}
	return nil, nil
}

func (e *Eligibility) book(ctx context.Context, id uuid.UUID) (*Book, error) {
	book, err := e.books.Get(ctx, id)
	if errors.Is(err, ErrBookNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("get book", err)
	}
	return book, nil
}

func (e *Eligibility) group(ctx context.Context, id uuid.UUID) (*Group, error) {
	group, err := e.groups.Get(ctx, id)
	if errors.Is(err, ErrGroupNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("get group", err)
	}
	return group, nil
}

func (e *Eligibility) activeLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error) {
	filter.States = ActiveStates
	loans, err := e.loans.ListLoans(ctx, filter)
	if err != nil {
		return nil, unavailable("list loans", err)
	}
	return loans, nil
}
