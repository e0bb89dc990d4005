package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TypeTopUp   TransactionType = "top_up"
	TypeCharge  TransactionType = "charge"
	TypePayment TransactionType = "payment"
)

// ParseTransactionType validates a persisted transaction type.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TypeTopUp, TypeCharge, TypePayment:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Credits reports whether entries of this type add to the balance.
func (t TransactionType) Credits() bool {
	return t == TypeTopUp
}

// TransactionStatus is the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxCancelled TransactionStatus = "cancelled"
)

// ParseTransactionStatus validates a persisted transaction status.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case TxPending, TxCompleted, TxCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// PaymentMethod is how a checkout is settled.
type PaymentMethod string

const (
	MethodBalance  PaymentMethod = "balance"
	MethodCard     PaymentMethod = "card"
	MethodCombined PaymentMethod = "combined"
)

// ParsePaymentMethod validates a payment method name.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodBalance, MethodCard, MethodCombined:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// NeedsInstrument reports whether the method charges an external instrument.
func (m PaymentMethod) NeedsInstrument() bool {
	return m == MethodCard || m == MethodCombined
}

// CourseLine is one course's share of a payment entry.
type CourseLine struct {
	CourseID string          `json:"course_id"`
	ChargeID string          `json:"charge_id"`
	Period   string          `json:"period"`
	Amount   decimal.Decimal `json:"amount"`
}

// PaymentLeg is one funding source of a payment entry. Only the balance leg
// moves the stored balance; the card leg is settled externally.
type PaymentLeg struct {
	Method PaymentMethod   `json:"method"` // balance or card
	Amount decimal.Decimal `json:"amount"`
	Last4  string          `json:"last4,omitempty"`
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID           string            `json:"id"`
	AccountID    string            `json:"account_id"`
	Type         TransactionType   `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`        // signed: top-ups positive, charges and payments negative
	BalanceAfter decimal.Decimal   `json:"balance_after"` // zero until posted
	Reference    string            `json:"reference,omitempty"`
	Description  string            `json:"description"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	PostedAt     *time.Time        `json:"posted_at,omitempty"`
	Sequence     int64             `json:"sequence"` // posting order; 0 until posted
	BatchID      string            `json:"batch_id,omitempty"`
	Courses      []CourseLine      `json:"courses,omitempty"`
	Legs         []PaymentLeg      `json:"legs,omitempty"`
}

// External returns the part of the amount settled by an external instrument.
func (t Transaction) External() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range t.Legs {
		if leg.Method == MethodCard {
			total = total.Add(leg.Amount)
		}
	}
	return total
}

// BalanceEffect is the signed change this entry makes to the stored balance.
func (t Transaction) BalanceEffect() decimal.Decimal {
	return t.Amount.Add(t.External())
}

// IsPosted reports whether the entry has moved the balance.
func (t Transaction) IsPosted() bool {
	return t.Status == TxCompleted
}

// DistributionMode says how a batch amount is spread over eligible accounts.
type DistributionMode string

const (
	DistributePerAccount DistributionMode = "per_account"
	DistributeEvenly     DistributionMode = "distribute_evenly"
)

// ParseDistributionMode validates a distribution mode name.
func ParseDistributionMode(s string) (DistributionMode, error) {
	switch m := DistributionMode(s); m {
	case DistributePerAccount, DistributeEvenly:
		return m, nil
	}
	return "", fmt.Errorf("unknown distribution mode %q", s)
}

// Batch is the aggregate record of one batch top-up.
type Batch struct {
	ID           string           `json:"id" yaml:"id"`
	Description  string           `json:"description" yaml:"description"`
	Mode         DistributionMode `json:"mode" yaml:"mode"`
	TotalAmount  decimal.Decimal  `json:"total_amount" yaml:"total_amount"`
	AccountCount int              `json:"account_count" yaml:"account_count"`
	CreatedAt    time.Time        `json:"created_at" yaml:"created_at"`
}
