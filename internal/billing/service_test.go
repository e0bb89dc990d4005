package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store/memory"
)

func seededStore() *memory.Store {
	s := memory.New()
	s.PutCourse(model.Course{
		ID:                  "math",
		Fee:                 dec("150"),
		PaymentType:         model.PaymentRecurring,
		BillingCycle:        model.CycleRef(model.CycleMonthly),
		DurationMonths:      3,
		PaymentDeadlineDays: 14,
	})
	s.PutCourse(model.Course{ID: "art", Fee: dec("120"), PaymentType: model.PaymentOneTime})
	s.PutEnrollment(model.Enrollment{ID: "e1", AccountID: "acct-1", CourseID: "math", StartDate: date(2025, 1, 1), Active: true})
	s.PutEnrollment(model.Enrollment{ID: "e2", AccountID: "acct-1", CourseID: "art", StartDate: date(2025, 1, 1), Active: true})
	s.PutCharge(charge("m1", "Cycle 1 - Jan 2025", model.ChargeUnpaid))
	s.PutCharge(charge("m2", "Cycle 2 - Feb 2025", model.ChargeUnpaid))
	s.PutCharge(charge("m3", "Cycle 3 - Mar 2025", model.ChargeUnpaid))
	s.PutCharge(model.OutstandingCharge{ID: "a1", AccountID: "acct-1", CourseID: "art", Period: "Cycle 1 - One-time", Amount: dec("120"), Status: model.ChargeUnpaid})
	return s
}

func newTestService(s *memory.Store) *Service {
	return NewService(s, s, s, nil)
}

func TestService_Obligations(t *testing.T) {
	s := seededStore()
	svc := newTestService(s)

	views, err := svc.Obligations(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, views, 2)

	math := views[0]
	assert.Equal(t, "math", math.Course.ID)
	assert.Len(t, math.Cycles, 3)
	assert.Equal(t, 3, math.Projection.TotalCycles)
	assert.Equal(t, []Status{StatusPending, StatusOngoing, StatusOngoing}, statuses(math.Reconciliation))

	art := views[1]
	p, ok := art.Payable()
	require.True(t, ok)
	assert.Equal(t, "a1", p.Charge.ID)
}

func TestService_Obligations_UnknownCourse(t *testing.T) {
	s := seededStore()
	s.PutEnrollment(model.Enrollment{ID: "e3", AccountID: "acct-1", CourseID: "ghost", Active: true})

	_, err := newTestService(s).Obligations(context.Background(), "acct-1")
	assert.Error(t, err)
}

func TestService_EnsurePayable(t *testing.T) {
	ctx := context.Background()
	s := seededStore()
	svc := newTestService(s)

	get := func(ids ...string) []model.OutstandingCharge {
		var out []model.OutstandingCharge
		for _, id := range ids {
			c, err := s.GetCharge(ctx, id)
			require.NoError(t, err)
			out = append(out, c)
		}
		return out
	}

	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"pending cycle", []string{"m1"}, false},
		{"earliest two in order", []string{"m1", "m2"}, false},
		{"across courses", []string{"m1", "a1"}, false},
		{"selection order does not matter", []string{"m2", "m1"}, false},
		{"skips cycle 1", []string{"m2"}, true},
		{"gap", []string{"m1", "m3"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.EnsurePayable(ctx, "acct-1", get(tt.ids...))
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrChargeNotPayable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_EnsurePayable_AfterSettlement(t *testing.T) {
	ctx := context.Background()
	s := seededStore()
	svc := newTestService(s)
	require.NoError(t, s.MarkPaid(ctx, "m1", date(2025, 1, 10)))

	m2, _ := s.GetCharge(ctx, "m2")
	assert.NoError(t, svc.EnsurePayable(ctx, "acct-1", []model.OutstandingCharge{m2}))

	m1, _ := s.GetCharge(ctx, "m1")
	assert.ErrorIs(t, svc.EnsurePayable(ctx, "acct-1", []model.OutstandingCharge{m1}), model.ErrChargeNotPayable)
}

func TestService_EnsurePayable_NoEnrollment(t *testing.T) {
	s := seededStore()
	stray := model.OutstandingCharge{ID: "x", AccountID: "acct-1", CourseID: "history", Period: "Jan 2025", Amount: dec("10"), Status: model.ChargeUnpaid}
	err := newTestService(s).EnsurePayable(context.Background(), "acct-1", []model.OutstandingCharge{stray})
	assert.ErrorIs(t, err, model.ErrChargeNotPayable)
}
