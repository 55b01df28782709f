package circulation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"libraloan/internal/circulation"
)

func assertAmount(t testing.TB, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestComputeFine(t *testing.T) {
	due := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		price     string
		returnAt  time.Time
		condition circulation.Condition
		amount    string
		reason    circulation.FineReason
	}{
		{"on time good", "500", due.Add(-6 * day), circulation.ConditionGood, "0", circulation.FineReasonNone},
		{"late good", "500", due.Add(10 * day), circulation.ConditionGood, "1500", circulation.FineReasonMissingAfterDeadline},
		{"on time minor damage", "500", due.Add(-6 * day), circulation.ConditionMinorDamage, "50", circulation.FineReasonMinorDamage},
		{"late overrides damage", "800", due.Add(15 * day), circulation.ConditionMinorDamage, "2350", circulation.FineReasonMissingAfterDeadline},
		{"on time major damage", "500", due, circulation.ConditionMajorDamage, "250", circulation.FineReasonMajorDamage},
		{"lost within period", "500", due.Add(-time.Hour), circulation.ConditionLost, "1000", circulation.FineReasonLostWithinPeriod},
		{"late overrides lost", "500", due.Add(2 * day), circulation.ConditionLost, "1100", circulation.FineReasonMissingAfterDeadline},
		{"partial day counts", "10", due.Add(time.Minute), circulation.ConditionGood, "70", circulation.FineReasonMissingAfterDeadline},
		{"fractional price", "19.99", due, circulation.ConditionMinorDamage, "1.999", circulation.FineReasonMinorDamage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, reason := circulation.ComputeFine(dec(tt.price), due, tt.returnAt, tt.condition)
			assertAmount(t, tt.amount, amount)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestDaysLate(t *testing.T) {
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), circulation.DaysLate(due, due))
	assert.Equal(t, int64(0), circulation.DaysLate(due, due.Add(-day)))
	assert.Equal(t, int64(1), circulation.DaysLate(due, due.Add(time.Nanosecond)))
	assert.Equal(t, int64(1), circulation.DaysLate(due, due.Add(day)))
	assert.Equal(t, int64(2), circulation.DaysLate(due, due.Add(day+time.Second)))
}

func TestComputeFineProperties(t *testing.T) {
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	conditions := []circulation.Condition{
		circulation.ConditionGood,
		circulation.ConditionMinorDamage,
		circulation.ConditionMajorDamage,
		circulation.ConditionLost,
	}

	rapid.Check(t, func(t *rapid.T) {
		price := decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "cents"), -2)
		offset := time.Duration(rapid.Int64Range(-90*24, 90*24).Draw(t, "hours")) * time.Hour
		condition := rapid.SampledFrom(conditions).Draw(t, "condition")
		returnAt := due.Add(offset)

		amount, reason := circulation.ComputeFine(price, due, returnAt, condition)
		if amount.IsNegative() {
			t.Fatalf("negative fine %s", amount)
		}
		if returnAt.After(due) {
			if reason != circulation.FineReasonMissingAfterDeadline {
				t.Fatalf("late return billed as %q", reason)
			}
			// A later return never costs less.
			later, _ := circulation.ComputeFine(price, due, returnAt.Add(day), condition)
			if later.LessThan(amount) {
				t.Fatalf("fine decreased from %s to %s", amount, later)
			}
			return
		}
		if condition == circulation.ConditionGood && !amount.IsZero() {
			t.Fatalf("on-time good return fined %s", amount)
		}
	})
}
