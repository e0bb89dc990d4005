package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubill-dev/edubill/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var visa = &model.Instrument{ID: "card-1", Brand: "visa", Last4: "4242"}

func charges(amounts ...string) []model.OutstandingCharge {
	out := make([]model.OutstandingCharge, len(amounts))
	for i, a := range amounts {
		out[i] = model.OutstandingCharge{
			ID:        string(rune('a' + i)),
			AccountID: "acct-1",
			Amount:    dec(a),
			Status:    model.ChargeUnpaid,
		}
	}
	return out
}

func TestAllocate_Combined(t *testing.T) {
	a, err := Allocate(AllocationInput{
		Charges:    charges("150", "120", "150"),
		Method:     model.MethodCombined,
		Balance:    dec("100"),
		Instrument: visa,
	})
	require.NoError(t, err)
	assert.True(t, a.Total.Equal(dec("420")))
	assert.True(t, a.BalanceUsed.Equal(dec("100")))
	assert.True(t, a.External.Equal(dec("320")))
	assert.True(t, a.BalanceAfter(dec("100")).IsZero())

	legs := a.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, model.MethodBalance, legs[0].Method)
	assert.Equal(t, model.MethodCard, legs[1].Method)
	assert.Equal(t, "4242", legs[1].Last4)
}

func TestAllocate_Balance(t *testing.T) {
	a, err := Allocate(AllocationInput{Charges: charges("50", "25.50"), Method: model.MethodBalance, Balance: dec("75.50")})
	require.NoError(t, err)
	assert.True(t, a.BalanceUsed.Equal(dec("75.50")))
	assert.True(t, a.External.IsZero())
	assert.Len(t, a.Legs(), 1)

	_, err = Allocate(AllocationInput{Charges: charges("200"), Method: model.MethodBalance, Balance: dec("50")})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
}

func TestAllocate_Card(t *testing.T) {
	a, err := Allocate(AllocationInput{Charges: charges("200"), Method: model.MethodCard, Balance: dec("500"), Instrument: visa})
	require.NoError(t, err)
	assert.True(t, a.BalanceUsed.IsZero())
	assert.True(t, a.External.Equal(dec("200")))

	_, err = Allocate(AllocationInput{Charges: charges("200"), Method: model.MethodCard, Balance: dec("500")})
	assert.ErrorIs(t, err, model.ErrMissingPaymentInstrument)
}

func TestAllocate_CombinedNotOffered(t *testing.T) {
	tests := []struct {
		name    string
		balance string
	}{
		{"zero balance", "0"},
		{"balance covers total", "420"},
		{"balance exceeds total", "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(AllocationInput{Charges: charges("420"), Method: model.MethodCombined, Balance: dec(tt.balance), Instrument: visa})
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	_, err := Allocate(AllocationInput{Charges: charges("420"), Method: model.MethodCombined, Balance: dec("100")})
	assert.ErrorIs(t, err, model.ErrMissingPaymentInstrument)
}

func TestAllocate_InvalidSelection(t *testing.T) {
	mixed := charges("10", "20")
	mixed[1].AccountID = "acct-2"

	dup := charges("10")
	dup = append(dup, dup[0])

	paid := charges("10")
	paid[0].Status = model.ChargePaid

	tests := []struct {
		name    string
		charges []model.OutstandingCharge
		method  model.PaymentMethod
		target  error
	}{
		{"empty", nil, model.MethodBalance, model.ErrValidation},
		{"mixed accounts", mixed, model.MethodBalance, model.ErrValidation},
		{"duplicate", dup, model.MethodBalance, model.ErrValidation},
		{"zero amount", charges("0"), model.MethodBalance, model.ErrValidation},
		{"already paid", paid, model.MethodBalance, model.ErrChargeNotPayable},
		{"unknown method", charges("10"), "voucher", model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(AllocationInput{Charges: tt.charges, Method: tt.method, Balance: dec("1000")})
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestAvailableMethods(t *testing.T) {
	assert.Equal(t, []model.PaymentMethod{model.MethodBalance, model.MethodCard}, AvailableMethods(dec("500"), dec("420")))
	assert.Equal(t, []model.PaymentMethod{model.MethodCard, model.MethodCombined}, AvailableMethods(dec("100"), dec("420")))
	assert.Equal(t, []model.PaymentMethod{model.MethodCard}, AvailableMethods(decimal.Zero, dec("420")))
}
