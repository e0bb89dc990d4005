package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubill-dev/edubill/internal/audit"
	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/metrics"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/notify"
	"github.com/edubill-dev/edubill/internal/store"
	"github.com/edubill-dev/edubill/internal/store/memory"
)

var now = time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	ledger  *ledger.Service
	svc     *Service
	mu      sync.Mutex
	notices []notify.Notice
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	s := memory.New()
	s.SetClock(func() time.Time { return now })

	jan1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.PutAccount(model.Account{ID: "acct-1", HolderID: "h1", Balance: dec(balance), OpeningBalance: dec(balance), Status: model.AccountActive})
	s.PutCourse(model.Course{ID: "math", Fee: dec("150"), PaymentType: model.PaymentRecurring, BillingCycle: model.CycleRef(model.CycleMonthly), DurationMonths: 3, PaymentDeadlineDays: 14})
	s.PutCourse(model.Course{ID: "art", Fee: dec("120"), PaymentType: model.PaymentOneTime, PaymentDeadlineDays: 30})
	s.PutCourse(model.Course{ID: "science", Fee: dec("150"), PaymentType: model.PaymentRecurring, BillingCycle: model.CycleRef(model.CycleMonthly), DurationMonths: 2})
	for _, course := range []string{"math", "art", "science"} {
		s.PutEnrollment(model.Enrollment{ID: "e-" + course, HolderID: "h1", AccountID: "acct-1", CourseID: course, StartDate: jan1, Active: true})
	}
	put := func(id, course, period, amount string) {
		s.PutCharge(model.OutstandingCharge{ID: id, AccountID: "acct-1", CourseID: course, Period: period, Amount: dec(amount), Status: model.ChargeUnpaid})
	}
	put("math-1", "math", "Cycle 1 - Jan 2025", "150")
	put("math-2", "math", "Cycle 2 - Feb 2025", "150")
	put("art-1", "art", "Cycle 1 - One-time", "120")
	put("sci-1", "science", "Cycle 1 - Jan 2025", "150")

	collector := metrics.NewCollector(nil)
	ledgerSvc := ledger.NewService(s, &audit.MemorySink{}, collector, nil)
	ledgerSvc.SetClock(func() time.Time { return now })
	billingSvc := billing.NewService(s, s, s, nil)

	f := &fixture{store: s, ledger: ledgerSvc}
	bus := notify.NewBus(nil)
	bus.Subscribe(func(_ context.Context, n notify.Notice) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.notices = append(f.notices, n)
	})
	f.svc = NewService(ledgerSvc, billingSvc, s, bus, collector, nil)
	return f
}

func (f *fixture) charge(t *testing.T, id string) model.OutstandingCharge {
	t.Helper()
	c, err := f.store.GetCharge(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) balance(t *testing.T) string {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	return a.Balance.StringFixed(2)
}

func TestCheckout_CombinedSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100")

	receipt, err := f.svc.Checkout(ctx, CheckoutParams{
		AccountID:  "acct-1",
		ChargeIDs:  []string{"math-1", "art-1", "sci-1"},
		Method:     model.MethodCombined,
		Instrument: &model.Instrument{Brand: "visa", Last4: "4242"},
	})
	require.NoError(t, err)

	assert.True(t, receipt.Allocation.BalanceUsed.Equal(dec("100")))
	assert.True(t, receipt.Allocation.External.Equal(dec("320")))
	assert.Equal(t, "0.00", f.balance(t))

	for _, id := range []string{"math-1", "art-1", "sci-1"} {
		assert.True(t, f.charge(t, id).IsPaid(), "charge %s", id)
	}
	assert.False(t, f.charge(t, "math-2").IsPaid())

	entries, err := f.ledger.History(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	tx := entries[0]
	assert.Equal(t, model.TypePayment, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("-420")))
	assert.True(t, tx.BalanceAfter.IsZero())
	assert.Len(t, tx.Courses, 3)
	require.Len(t, tx.Legs, 2)
	assert.Equal(t, "4242", tx.Legs[1].Last4)

	require.Len(t, f.notices, 1)
	assert.Equal(t, notify.KindSuccess, f.notices[0].Kind)
	assert.Equal(t, "Paid 420.00: 100.00 from balance, 320.00 by card ending 4242", receipt.Notice.Message)

	errs, err := f.ledger.VerifyAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestCheckout_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "50")

	_, err := f.svc.Checkout(ctx, CheckoutParams{
		AccountID: "acct-1",
		ChargeIDs: []string{"math-1", "art-1"},
		Method:    model.MethodBalance,
	})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	assert.Equal(t, "50.00", f.balance(t))
	assert.False(t, f.charge(t, "math-1").IsPaid())
	assert.False(t, f.charge(t, "art-1").IsPaid())
	entries, _ := f.ledger.History(ctx, "acct-1")
	assert.Empty(t, entries)

	require.Len(t, f.notices, 1)
	assert.Equal(t, notify.KindError, f.notices[0].Kind)
}

func TestCheckout_BalanceOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "500")

	receipt, err := f.svc.Checkout(ctx, CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"math-1", "math-2"}, Method: model.MethodBalance})
	require.NoError(t, err)
	assert.True(t, receipt.Transaction.BalanceAfter.Equal(dec("200")))
	assert.Equal(t, "200.00", f.balance(t))
	assert.Len(t, receipt.Charges, 2)
	assert.Equal(t, "Payment for math, 2 cycle(s)", receipt.Transaction.Description)
}

func TestCheckout_CardLeavesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "500")

	receipt, err := f.svc.Checkout(ctx, CheckoutParams{
		AccountID:  "acct-1",
		ChargeIDs:  []string{"art-1"},
		Method:     model.MethodCard,
		Instrument: &model.Instrument{Last4: "0005"},
	})
	require.NoError(t, err)
	assert.True(t, receipt.Transaction.Amount.Equal(dec("-120")))
	assert.True(t, receipt.Transaction.BalanceAfter.Equal(dec("500")))
	assert.Equal(t, "500.00", f.balance(t))
}

func TestCheckout_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		params CheckoutParams
		target error
	}{
		{"no charges", CheckoutParams{AccountID: "acct-1", Method: model.MethodBalance}, model.ErrValidation},
		{"unknown method", CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"art-1"}, Method: "voucher"}, model.ErrValidation},
		{"duplicate ids", CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"art-1", "art-1"}, Method: model.MethodBalance}, model.ErrValidation},
		{"bad last4", CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"art-1"}, Method: model.MethodCard, Instrument: &model.Instrument{Last4: "42"}}, model.ErrValidation},
		{"card without instrument", CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"art-1"}, Method: model.MethodCard}, model.ErrMissingPaymentInstrument},
		{"out of order", CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"math-2"}, Method: model.MethodBalance}, model.ErrChargeNotPayable},
		{"unknown charge", CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"nope"}, Method: model.MethodBalance}, store.ErrNotFound},
		{"other account", CheckoutParams{AccountID: "acct-2", ChargeIDs: []string{"art-1"}, Method: model.MethodBalance}, model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "1000")
			_, err := f.svc.Checkout(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, "1000.00", f.balance(t))
		})
	}
}

func TestCheckout_SameChargeConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(ctx, CheckoutParams{AccountID: "acct-1", ChargeIDs: []string{"art-1"}, Method: model.MethodBalance})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, model.ErrChargeNotPayable)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, "880.00", f.balance(t))
}
