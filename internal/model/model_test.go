package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingCycleMonths(t *testing.T) {
	tests := []struct {
		cycle BillingCycle
		want  int
	}{
		{CycleMonthly, 1},
		{CycleQuarterly, 3},
		{CycleBiAnnually, 6},
		{CycleAnnually, 12},
		{BillingCycle("weekly"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cycle.Months(), "Months(%q)", tt.cycle)
	}
}

func TestParseChargeStatus_RejectsPartial(t *testing.T) {
	_, err := ParseChargeStatus("partial")
	require.Error(t, err)

	st, err := ParseChargeStatus("overdue")
	require.NoError(t, err)
	assert.Equal(t, ChargeOverdue, st)
}

func TestHolderAgeAt(t *testing.T) {
	h := Holder{BirthDate: time.Date(2008, 6, 15, 0, 0, 0, 0, time.UTC)}

	assert.Equal(t, 16, h.AgeAt(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 17, h.AgeAt(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 17, h.AgeAt(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestTransactionBalanceEffect(t *testing.T) {
	tx := Transaction{
		Type:   TypePayment,
		Amount: decimal.RequireFromString("-420"),
		Legs: []PaymentLeg{
			{Method: MethodBalance, Amount: decimal.RequireFromString("100")},
			{Method: MethodCard, Amount: decimal.RequireFromString("320"), Last4: "4242"},
		},
	}
	assert.True(t, tx.External().Equal(decimal.RequireFromString("320")))
	assert.True(t, tx.BalanceEffect().Equal(decimal.RequireFromString("-100")))

	topUp := Transaction{Type: TypeTopUp, Amount: decimal.RequireFromString("50")}
	assert.True(t, topUp.BalanceEffect().Equal(topUp.Amount))
}

func TestValidationErrorIs(t *testing.T) {
	err := Invalid("amount", "must be greater than zero")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: amount: must be greater than zero", err.Error())
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount("amount", decimal.RequireFromString("10.25")))
	assert.Error(t, ValidateAmount("amount", decimal.Zero))
	assert.Error(t, ValidateAmount("amount", decimal.RequireFromString("-1")))
	assert.Error(t, ValidateAmount("amount", decimal.RequireFromString("1.005")))
}

func TestCheck(t *testing.T) {
	type params struct {
		AccountID   string `json:"account_id" validate:"required"`
		Description string `json:"description" validate:"required,max=10"`
	}

	require.NoError(t, Check(params{AccountID: "a", Description: "ok"}))

	err := Check(params{Description: "ok"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "account_id", ve.Field)
	assert.Equal(t, "required", ve.Reason)

	err = Check(params{AccountID: "a", Description: "far too long a description"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "description", ve.Field)
	assert.Equal(t, "max=10", ve.Reason)
}
