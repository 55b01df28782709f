package circulation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var cent = decimal.New(1, -2)

// SplitFine divides fine across members. Every member gets fine/n truncated
// to cents; leftover cents go one at a time to members in order, and any
// sub-cent residue goes to the first member. Shares always sum to fine.
func SplitFine(fine decimal.Decimal, members []uuid.UUID) []FineShare {
	if len(members) == 0 {
		return nil
	}
	n := decimal.NewFromInt(int64(len(members)))
	base := fine.Div(n).Truncate(2)

	shares := make([]FineShare, len(members))
	for i, m := range members {
		shares[i] = FineShare{MemberID: m, Amount: base}
	}

	remainder := fine.Sub(base.Mul(n))
	cents := remainder.Div(cent).Truncate(0).IntPart()
	for i := int64(0); i < cents && int(i) < len(shares); i++ {
		shares[i].Amount = shares[i].Amount.Add(cent)
	}
	residue := fine.Sub(sumShares(shares))
	if !residue.IsZero() {
		shares[0].Amount = shares[0].Amount.Add(residue)
	}
	return shares
}

func sumShares(shares []FineShare) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	return total
}

// shareOf returns the amount already charged to member in shares.
func shareOf(shares []FineShare, member uuid.UUID) decimal.Decimal {
	for _, s := range shares {
		if s.MemberID == member {
			return s.Amount
		}
	}
	return decimal.Zero
}

// fineDistributor routes fine charges and reversals to user and group
// balances. Every applied step registers its undo in comp.
type fineDistributor struct {
	groups   Groups
	balances Balances
}

// snapshotMembers returns the membership a group loan's fine is split over:
// the persisted snapshot if one exists, otherwise the current members.
func (d *fineDistributor) snapshotMembers(ctx context.Context, loan *Loan) ([]uuid.UUID, error) {
	if len(loan.FineShares) > 0 {
		members := make([]uuid.UUID, len(loan.FineShares))
		for i, s := range loan.FineShares {
			members[i] = s.MemberID
		}
		return members, nil
	}
	group, err := d.groups.Get(ctx, *loan.GroupID)
	if err != nil {
		return nil, unavailable("get group", err)
	}
	return group.OrderedMembers(), nil
}

// assess charges delta to whoever owns the loan. loan.FineAmount must already
// hold the new total. For group loans the recorded shares are moved to the
// split of that total, so each member is charged the difference from what
// they already owe. It returns the per-user amounts charged.
func (d *fineDistributor) assess(ctx context.Context, loan *Loan, delta decimal.Decimal, comp *compensations) ([]FineShare, error) {
	if !delta.IsPositive() {
		return nil, nil
	}

	if !loan.IsGroupLoan() {
		if err := d.adjustUser(ctx, loan.BorrowerID, delta, comp); err != nil {
			return nil, err
		}
		return []FineShare{{MemberID: loan.BorrowerID, Amount: delta}}, nil
	}

	members, err := d.snapshotMembers(ctx, loan)
	if err != nil {
		return nil, err
	}
	target := SplitFine(loan.FineAmount, members)
	charged := make([]FineShare, 0, len(target))
	for _, s := range target {
		amount := s.Amount.Sub(shareOf(loan.FineShares, s.MemberID))
		if !amount.IsZero() {
			charged = append(charged, FineShare{MemberID: s.MemberID, Amount: amount})
		}
	}
	if !sumShares(charged).Equal(delta) {
		return nil, fmt.Errorf("loan %s: recorded shares do not match prior fine", loan.ID)
	}

	groupID := *loan.GroupID
	if err := d.groups.AdjustTotalFines(ctx, groupID, delta); err != nil {
		return nil, unavailable("adjust group fines", err)
	}
	comp.add("group fines "+groupID.String(), func(ctx context.Context) error {
		return d.groups.AdjustTotalFines(ctx, groupID, delta.Neg())
	})

	for _, s := range charged {
		if err := d.adjustUser(ctx, s.MemberID, s.Amount, comp); err != nil {
			return nil, err
		}
	}
	loan.FineShares = target
	return charged, nil
}

// reverse undoes the whole recorded fine of a loan, using exactly the shares
// persisted at assessment time.
func (d *fineDistributor) reverse(ctx context.Context, loan *Loan, comp *compensations) error {
	fine := loan.FineAmount
	if !loan.IsGroupLoan() {
		return d.adjustUser(ctx, loan.BorrowerID, fine.Neg(), comp)
	}

	if !sumShares(loan.FineShares).Equal(fine) {
		return fmt.Errorf("loan %s: fine shares do not sum to recorded fine %s", loan.ID, fine)
	}

	groupID := *loan.GroupID
	if err := d.groups.AdjustTotalFines(ctx, groupID, fine.Neg()); err != nil {
		return unavailable("adjust group fines", err)
	}
	comp.add("group fines "+groupID.String(), func(ctx context.Context) error {
		return d.groups.AdjustTotalFines(ctx, groupID, fine)
	})

	for _, s := range loan.FineShares {
		if err := d.adjustUser(ctx, s.MemberID, s.Amount.Neg(), comp); err != nil {
			return err
		}
	}
	return nil
}

func (d *fineDistributor) adjustUser(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, comp *compensations) error {
	if err := d.balances.Adjust(ctx, userID, delta); err != nil {
		return unavailable("adjust balance", err)
	}
	comp.add("balance "+userID.String(), func(ctx context.Context) error {
		return d.balances.Adjust(ctx, userID, delta.Neg())
	})
	return nil
}
