package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType says whether a course is paid once or per billing cycle.
type PaymentType string

const (
	PaymentOneTime   PaymentType = "one_time"
	PaymentRecurring PaymentType = "recurring"
)

// ParsePaymentType validates a persisted payment type.
func ParsePaymentType(s string) (PaymentType, error) {
	switch pt := PaymentType(s); pt {
	case PaymentOneTime, PaymentRecurring:
		return pt, nil
	}
	return "", fmt.Errorf("unknown payment type %q", s)
}

// BillingCycle is the recurrence unit of a recurring course.
type BillingCycle string

const (
	CycleMonthly    BillingCycle = "monthly"
	CycleQuarterly  BillingCycle = "quarterly"
	CycleBiAnnually BillingCycle = "bi_annually"
	CycleAnnually   BillingCycle = "annually"
)

// BillingCycles lists every cycle from shortest to longest.
var BillingCycles = []BillingCycle{CycleMonthly, CycleQuarterly, CycleBiAnnually, CycleAnnually}

// Months returns the length of one cycle in months, or 0 for an unknown cycle.
func (c BillingCycle) Months() int {
	switch c {
	case CycleMonthly:
		return 1
	case CycleQuarterly:
		return 3
	case CycleBiAnnually:
		return 6
	case CycleAnnually:
		return 12
	}
	return 0
}

// ParseBillingCycle validates a persisted billing cycle.
func ParseBillingCycle(s string) (BillingCycle, error) {
	c := BillingCycle(s)
	if c.Months() == 0 {
		return "", fmt.Errorf("unknown billing cycle %q", s)
	}
	return c, nil
}

// CycleRef returns a pointer to c, for optional BillingCycle fields.
func CycleRef(c BillingCycle) *BillingCycle {
	return &c
}

// Course is the payment configuration of an offered course.
type Course struct {
	ID                  string          `json:"id" yaml:"id"`
	Name                string          `json:"name" yaml:"name"`
	Fee                 decimal.Decimal `json:"fee" yaml:"fee"` // per cycle; the whole fee for one-time courses
	PaymentType         PaymentType     `json:"payment_type" yaml:"payment_type"`
	BillingCycle        *BillingCycle   `json:"billing_cycle,omitempty" yaml:"billing_cycle,omitempty"` // nil unless PaymentType is recurring
	DurationMonths      int             `json:"duration_months,omitempty" yaml:"duration_months,omitempty"`
	StartDate           *time.Time      `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate             *time.Time      `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	PaymentDeadlineDays int             `json:"payment_deadline_days" yaml:"payment_deadline_days"`
}

// Cycle returns the course billing cycle and whether one is set.
func (c Course) Cycle() (BillingCycle, bool) {
	if c.BillingCycle == nil {
		return "", false
	}
	return *c.BillingCycle, true
}

// IsRecurring reports whether the course charges per billing cycle.
func (c Course) IsRecurring() bool {
	return c.PaymentType == PaymentRecurring
}
