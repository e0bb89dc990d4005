package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
	"github.com/edubill-dev/edubill/internal/store/memory"
)

const feeRun = FeeRunHeader + `
m1,acct-1,math,Cycle 1 - Jan 2025,150.00,2025-01-15,unpaid
m2,acct-1,math,Cycle 2 - Feb 2025,150.00,2025-02-15,overdue
`

func TestFeeRunParser_Parse(t *testing.T) {
	charges, err := (&FeeRunParser{}).Parse(strings.NewReader(feeRun))
	require.NoError(t, err)
	require.Len(t, charges, 2)

	assert.Equal(t, "m1", charges[0].ID)
	assert.Equal(t, "acct-1", charges[0].AccountID)
	assert.Equal(t, "Cycle 1 - Jan 2025", charges[0].Period)
	assert.Equal(t, "150.00", charges[0].Amount.StringFixed(2))
	assert.Equal(t, 15, charges[0].DueDate.Day())
	assert.Equal(t, model.ChargeOverdue, charges[1].Status)
}

func TestFeeRunParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		row     string
		want    string
		invalid bool
	}{
		{"bad amount", "m1,acct-1,math,Cycle 1,abc,2025-01-15,unpaid", "parsing amount", false},
		{"zero amount", "m1,acct-1,math,Cycle 1,0,2025-01-15,unpaid", "must be greater than zero", true},
		{"sub-cent amount", "m1,acct-1,math,Cycle 1,10.005,2025-01-15,unpaid", "more than 2 decimal places", true},
		{"bad date", "m1,acct-1,math,Cycle 1,10,15/01/2025,unpaid", "parsing due_date", false},
		{"partial status", "m1,acct-1,math,Cycle 1,10,2025-01-15,partial", "unknown charge status", false},
		{"empty period", "m1,acct-1,math,,10,2025-01-15,unpaid", "column 4 is empty", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&FeeRunParser{}).Parse(strings.NewReader(FeeRunHeader + "\n" + tt.row + "\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "row 2")
			assert.Contains(t, err.Error(), tt.want)
			if tt.invalid {
				assert.ErrorIs(t, err, model.ErrValidation)
			}
		})
	}
}

func TestFeeRunParser_HeaderOnlyAndWrongHeader(t *testing.T) {
	charges, err := (&FeeRunParser{}).Parse(strings.NewReader(FeeRunHeader + "\n"))
	require.NoError(t, err)
	assert.Empty(t, charges)

	_, err = (&FeeRunParser{}).Parse(strings.NewReader("a,b,c,d,e,f,g\n"))
	assert.ErrorContains(t, err, "unexpected header")
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r.Get("FEERUN"))
	assert.Nil(t, r.Get("chase"))
	assert.Panics(t, func() { r.Register(&FeeRunParser{}) })
}

func TestScanAndMarkProcessed(t *testing.T) {
	root := t.TempDir()
	files, err := Scan(root)
	require.NoError(t, err)
	assert.Empty(t, files)

	dir := filepath.Join(root, "import")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "processed"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.csv"), []byte(feeRun), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err = Scan(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "jan.csv", files[0].Name)

	charges, err := ParseFile(&FeeRunParser{}, files[0].Path)
	require.NoError(t, err)
	assert.Len(t, charges, 2)

	require.NoError(t, MarkProcessed(root, "jan.csv"))
	_, err = os.Stat(filepath.Join(dir, "processed", "jan.csv"))
	assert.NoError(t, err)
	files, err = Scan(root)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func seeded() *memory.Store {
	st := memory.New()
	st.PutAccount(model.Account{ID: "acct-1", Status: model.AccountActive, Balance: decimal.Zero})
	st.PutCourse(model.Course{ID: "math", PaymentType: model.PaymentOneTime, Fee: decimal.NewFromInt(150)})
	st.PutCharge(model.OutstandingCharge{ID: "m1", AccountID: "acct-1", CourseID: "math", Status: model.ChargePaid})
	return st
}

func lookup(st *memory.Store) Lookup {
	s := st.Stores()
	return Lookup{Accounts: s.Accounts, Courses: s.Courses, Charges: s.Charges}
}

func TestCheck_SkipsDuplicates(t *testing.T) {
	st := seeded()
	charges, err := (&FeeRunParser{}).Parse(strings.NewReader(feeRun + "m2,acct-1,math,Cycle 2 - Feb 2025,150.00,2025-02-15,unpaid\n"))
	require.NoError(t, err)

	res, err := Check(context.Background(), lookup(st), charges)
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Equal(t, "m2", res.New[0].ID)
	assert.Equal(t, []string{"m1", "m2"}, res.Duplicates)

	// The stored paid charge is untouched.
	c, err := st.GetCharge(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, c.IsPaid())
}

func TestCheck_UnknownReferences(t *testing.T) {
	st := seeded()
	_, err := Check(context.Background(), lookup(st), []model.OutstandingCharge{{ID: "x1", AccountID: "acct-9", CourseID: "math"}})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = Check(context.Background(), lookup(st), []model.OutstandingCharge{{ID: "x1", AccountID: "acct-1", CourseID: "art"}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
