package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubill-dev/edubill/internal/model"
)

func monthlyCycles(n int) []Cycle {
	in := recurring(model.CycleMonthly, date(2025, 1, 1), date(2025, 1, 1))
	in.CourseEnd = nil
	in.DurationMonths = n
	return Generate(in)
}

func charge(id, period string, status model.ChargeStatus) model.OutstandingCharge {
	return model.OutstandingCharge{ID: id, AccountID: "acct-1", CourseID: "math", Period: period, Amount: dec("150"), Status: status}
}

func statuses(r Reconciliation) []Status {
	out := make([]Status, len(r.Obligations))
	for i, o := range r.Obligations {
		out[i] = o.Status
	}
	return out
}

func TestReconcile_SequentialGating(t *testing.T) {
	cycles := monthlyCycles(2)
	charges := []model.OutstandingCharge{
		charge("c1", "Cycle 1 - Jan 2025", model.ChargeUnpaid),
		charge("c2", "Cycle 2 - Feb 2025", model.ChargeOverdue),
	}

	r := Reconcile(cycles, charges, model.PaymentRecurring)
	assert.Equal(t, []Status{StatusPending, StatusOngoing}, statuses(r))

	payable, ok := r.Payable()
	require.True(t, ok)
	assert.Equal(t, "c1", payable.Charge.ID)
}

func TestReconcile_PaidMovesToHistory(t *testing.T) {
	cycles := monthlyCycles(3)
	charges := []model.OutstandingCharge{
		charge("c1", "Cycle 1 - Jan 2025", model.ChargePaid),
		charge("c2", "Cycle 2 - Feb 2025", model.ChargeUnpaid),
		charge("c3", "Cycle 3 - Mar 2025", model.ChargeUnpaid),
	}

	r := Reconcile(cycles, charges, model.PaymentRecurring)
	require.Len(t, r.History, 1)
	assert.Equal(t, StatusPaid, r.History[0].Status)
	require.Len(t, r.Obligations, 2)
	assert.Equal(t, "c2", r.Obligations[0].Charge.ID)
	assert.Equal(t, []Status{StatusPending, StatusOngoing}, statuses(r))

	assert.True(t, r.TotalFee.Equal(dec("450")))
	assert.True(t, r.TotalPaid.Equal(dec("150")))
	assert.True(t, r.TotalOutstanding.Equal(dec("300")))
}

func TestReconcile_MatchPriority(t *testing.T) {
	cycles := monthlyCycles(3)
	charges := []model.OutstandingCharge{
		charge("by-cycle-number", "cycle 3 fee", model.ChargeUnpaid),
		charge("by-period", "Tuition Feb 2025", model.ChargeUnpaid),
		charge("exact", "Cycle 1 - Jan 2025", model.ChargeUnpaid),
	}

	r := Reconcile(cycles, charges, model.PaymentRecurring)
	require.Len(t, r.Obligations, 3)
	assert.Equal(t, "exact", r.Obligations[0].Charge.ID)
	assert.Equal(t, "by-period", r.Obligations[1].Charge.ID)
	assert.Equal(t, "by-cycle-number", r.Obligations[2].Charge.ID)
	assert.Empty(t, r.Unmatched)
	assert.Empty(t, r.Orphans)
}

func TestReconcile_EachChargeUsedOnce(t *testing.T) {
	cycles := monthlyCycles(2)
	charges := []model.OutstandingCharge{
		charge("c1", "Cycle 1 - Jan 2025", model.ChargeUnpaid),
	}

	r := Reconcile(cycles, charges, model.PaymentRecurring)
	require.Len(t, r.Obligations, 2)
	assert.True(t, r.Obligations[0].Matched())
	assert.False(t, r.Obligations[1].Matched())
	require.Len(t, r.Unmatched, 1)
	assert.Equal(t, "Cycle 2 - Feb 2025", r.Unmatched[0].Label)
}

func TestReconcile_UnmatchedCycleIsNeverPending(t *testing.T) {
	cycles := monthlyCycles(3)
	charges := []model.OutstandingCharge{
		charge("c2", "Cycle 2 - Feb 2025", model.ChargeUnpaid),
		charge("c3", "Cycle 3 - Mar 2025", model.ChargeUnpaid),
	}

	r := Reconcile(cycles, charges, model.PaymentRecurring)
	assert.Equal(t, []Status{StatusOngoing, StatusPending, StatusOngoing}, statuses(r))
	assert.Len(t, r.Unmatched, 1)
}

func TestReconcile_Orphans(t *testing.T) {
	cycles := monthlyCycles(1)
	charges := []model.OutstandingCharge{
		charge("c1", "Cycle 1 - Jan 2025", model.ChargeUnpaid),
		charge("stray", "Late fee", model.ChargeUnpaid),
	}

	r := Reconcile(cycles, charges, model.PaymentRecurring)
	require.Len(t, r.Orphans, 1)
	assert.Equal(t, "stray", r.Orphans[0].ID)
}

func TestReconcile_OneTime(t *testing.T) {
	cycles := Generate(ScheduleInput{PaymentType: model.PaymentOneTime, Fee: dec("900"), EnrollmentStart: date(2025, 1, 1)})
	charges := []model.OutstandingCharge{charge("c1", "One-time", model.ChargeUnpaid)}

	r := Reconcile(cycles, charges, model.PaymentOneTime)
	assert.Equal(t, []Status{StatusPending}, statuses(r))
	assert.True(t, r.TotalFee.Equal(dec("900")))
	assert.True(t, r.TotalOutstanding.Equal(dec("900")))
}

func TestReconcile_NothingPayable(t *testing.T) {
	r := Reconcile(monthlyCycles(2), nil, model.PaymentRecurring)
	_, ok := r.Payable()
	assert.False(t, ok)
	assert.Len(t, r.Unmatched, 2)
	assert.Empty(t, r.PayableOrder())
}
