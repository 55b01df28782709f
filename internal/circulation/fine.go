package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	lateMultiplier     = decimal.NewFromInt(2)
	lateDailyFine      = decimal.NewFromInt(50)
	minorDamageRate    = decimal.RequireFromString("0.10")
	majorDamageRate    = decimal.RequireFromString("0.50")
	lostWithinPeriodBy = decimal.NewFromInt(2)
)

// ComputeFine applies the fine policy. Lateness overrides the returned
// condition: a late book is billed as missing whatever state it is in.
func ComputeFine(price decimal.Decimal, dueAt, returnAt time.Time, condition Condition) (decimal.Decimal, FineReason) {
	if returnAt.After(dueAt) {
		days := decimal.NewFromInt(DaysLate(dueAt, returnAt))
		return price.Mul(lateMultiplier).Add(lateDailyFine.Mul(days)), FineReasonMissingAfterDeadline
	}

	switch condition {
	case ConditionLost:
		return price.Mul(lostWithinPeriodBy), FineReasonLostWithinPeriod
	case ConditionMinorDamage:
		return price.Mul(minorDamageRate), FineReasonMinorDamage
	case ConditionMajorDamage:
		return price.Mul(majorDamageRate), FineReasonMajorDamage
	default:
		return decimal.Zero, FineReasonNone
	}
}

// DaysLate counts started days past the due date.
func DaysLate(dueAt, returnAt time.Time) int64 {
	late := returnAt.Sub(dueAt)
	if late <= 0 {
		return 0
	}
	days := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return days
}
