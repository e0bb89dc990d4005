package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edubill-dev/edubill/internal/id"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
	"github.com/edubill-dev/edubill/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// openTestStore connects to EDUBILL_TEST_DSN, or skips. Each test gets a
// freshly migrated schema with its tables emptied.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("EDUBILL_TEST_DSN")
	if dsn == "" {
		t.Skip("EDUBILL_TEST_DSN not set")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	for _, m := range allModels {
		require.NoError(t, s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error)
	}
	return s
}

func TestEntryModel_RoundTrip(t *testing.T) {
	posted := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	tx := model.Transaction{
		ID:           "t1",
		AccountID:    "acct-1",
		Type:         model.TypePayment,
		Amount:       dec("-420"),
		BalanceAfter: dec("0"),
		Reference:    "PAY-20250115-0001",
		Status:       model.TxCompleted,
		CreatedAt:    posted,
		PostedAt:     &posted,
		Sequence:     3,
		Courses: []model.CourseLine{
			{CourseID: "math", ChargeID: "c1", Period: "Cycle 1 - Jan 2025", Amount: dec("150")},
		},
		Legs: []model.PaymentLeg{
			{Method: model.MethodBalance, Amount: dec("100")},
			{Method: model.MethodCard, Amount: dec("320"), Last4: "4242"},
		},
	}

	m, err := entryToModel(tx)
	require.NoError(t, err)
	assert.True(t, json.Valid(m.Legs))
	assert.Equal(t, "payment", m.Type)

	got, err := entryFromModel(m)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.True(t, got.External().Equal(dec("320")))
	require.Len(t, got.Courses, 1)
	assert.Equal(t, "Cycle 1 - Jan 2025", got.Courses[0].Period)

	_, err = entryFromModel(EntryModel{ID: "x", Type: "refund", Status: "completed"})
	assert.Error(t, err)
}

func TestCourseModel_RoundTrip(t *testing.T) {
	c := model.Course{
		ID:             "math",
		Fee:            dec("150"),
		PaymentType:    model.PaymentRecurring,
		BillingCycle:   model.CycleRef(model.CycleQuarterly),
		DurationMonths: 6,
	}
	got, err := courseFromModel(courseToModel(c))
	require.NoError(t, err)
	require.NotNil(t, got.BillingCycle)
	assert.Equal(t, model.CycleQuarterly, *got.BillingCycle)

	oneTime, err := courseFromModel(CourseModel{ID: "art", PaymentType: "one_time"})
	require.NoError(t, err)
	assert.Nil(t, oneTime.BillingCycle)
}

func TestChargeModel_RejectsPartial(t *testing.T) {
	_, err := chargeFromModel(ChargeModel{ID: "c1", Status: "partial"})
	assert.Error(t, err)
}

func TestStore_LedgerLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	mem := memory.New()
	mem.PutAccount(model.Account{ID: "acct-1", Status: model.AccountActive, Balance: dec("0")})
	mem.PutCharge(model.OutstandingCharge{ID: "c1", AccountID: "acct-1", CourseID: "math", Period: "Cycle 1 - Jan 2025", Amount: dec("150"), DueDate: now, Status: model.ChargeUnpaid})
	stats, err := s.Import(ctx, mem.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Accounts)
	assert.Equal(t, 1, stats.Charges)

	err = s.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		acct, err := st.Accounts.GetAccount(ctx, "acct-1")
		if err != nil {
			return err
		}
		tx, err := st.Ledger.Append(ctx, model.Transaction{
			AccountID:    "acct-1",
			Type:         model.TypeTopUp,
			Amount:       dec("200"),
			BalanceAfter: acct.Balance.Add(dec("200")),
			Status:       model.TxCompleted,
		})
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), tx.Sequence)
		assert.Equal(t, "TOP-20250115-0001", tx.Reference)
		return st.Accounts.SetBalance(ctx, "acct-1", tx.BalanceAfter)
	})
	require.NoError(t, err)

	acct, err := s.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("200")))

	// A failing unit of work leaves nothing behind.
	boom := errors.New("boom")
	err = s.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		if _, err := st.Ledger.Append(ctx, model.Transaction{AccountID: "acct-1", Type: model.TypeCharge, Amount: dec("-5"), Status: model.TxCompleted}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := s.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	due := now.Add(time.Hour)
	pending, err := s.Append(ctx, model.Transaction{AccountID: "acct-1", Type: model.TypeTopUp, Amount: dec("10"), Status: model.TxPending, ScheduledFor: &due})
	require.NoError(t, err)
	assert.Zero(t, pending.Sequence)
	assert.Equal(t, id.FormatReference(id.PrefixTopUp, now, 2), pending.Reference)

	list, err := s.ListPending(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = s.ListPending(ctx, due)
	require.NoError(t, err)
	require.Len(t, list, 1)

	done, err := s.Complete(ctx, pending.ID, dec("210"), due)
	require.NoError(t, err)
	assert.Equal(t, int64(2), done.Sequence)

	_, err = s.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	require.NoError(t, s.MarkPaid(ctx, "c1", due))
	assert.ErrorIs(t, s.MarkPaid(ctx, "c1", due), model.ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkPaid(ctx, "ghost", due), store.ErrNotFound)

	_, err = s.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ConcurrentPostingsOnDifferentAccounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	const accounts = 8
	mem := memory.New()
	for i := 0; i < accounts; i++ {
		mem.PutAccount(model.Account{ID: fmt.Sprintf("acct-%d", i), Status: model.AccountActive, Balance: dec("0")})
	}
	_, err := s.Import(ctx, mem.Snapshot())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, accounts)
	refs := make([]string, accounts)
	for i := 0; i < accounts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
				acctID := fmt.Sprintf("acct-%d", i)
				acct, err := st.Accounts.GetAccount(ctx, acctID)
				if err != nil {
					return err
				}
				tx, err := st.Ledger.Append(ctx, model.Transaction{
					AccountID:    acctID,
					Type:         model.TypeTopUp,
					Amount:       dec("10"),
					BalanceAfter: acct.Balance.Add(dec("10")),
					Status:       model.TxCompleted,
				})
				if err != nil {
					return err
				}
				refs[i] = tx.Reference
				return st.Accounts.SetBalance(ctx, acctID, tx.BalanceAfter)
			})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < accounts; i++ {
		require.NoError(t, errs[i], "acct-%d", i)
		assert.False(t, seen[refs[i]], "reference %s issued twice", refs[i])
		seen[refs[i]] = true
	}
	for n := 1; n <= accounts; n++ {
		assert.True(t, seen[id.FormatReference(id.PrefixTopUp, now, n)], "missing sequence %d", n)
	}

	// A standalone Append takes the same series lock.
	due := now.Add(time.Hour)
	pending, err := s.Append(ctx, model.Transaction{AccountID: "acct-0", Type: model.TypeTopUp, Amount: dec("5"), Status: model.TxPending, ScheduledFor: &due})
	require.NoError(t, err)
	assert.Equal(t, id.FormatReference(id.PrefixTopUp, now, accounts+1), pending.Reference)
}
