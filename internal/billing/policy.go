package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// MinMonths returns the shortest course duration, in months, that permits the
// given billing cycle: two full cycles.
func MinMonths(c model.BillingCycle) int {
	return 2 * c.Months()
}

// CycleOption is one billing cycle as offered for a course duration.
type CycleOption struct {
	Cycle     model.BillingCycle
	MinMonths int
	Enabled   bool
}

// Options tags every billing cycle with its minimum duration and whether a
// course of durationMonths may use it.
func Options(durationMonths int) []CycleOption {
	opts := make([]CycleOption, len(model.BillingCycles))
	for i, c := range model.BillingCycles {
		minMonths := MinMonths(c)
		opts[i] = CycleOption{Cycle: c, MinMonths: minMonths, Enabled: durationMonths >= minMonths}
	}
	return opts
}

// EnabledCycles returns the billing cycles permitted for a course running
// from start through end.
func EnabledCycles(start, end time.Time) []model.BillingCycle {
	var enabled []model.BillingCycle
	for _, opt := range Options(DurationMonths(start, end)) {
		if opt.Enabled {
			enabled = append(enabled, opt.Cycle)
		}
	}
	return enabled
}

// Allowed reports whether cycle c is permitted for a course of durationMonths.
func Allowed(c model.BillingCycle, durationMonths int) bool {
	return c.Months() > 0 && durationMonths >= MinMonths(c)
}

// Check re-evaluates a selected billing cycle after the course dates change.
// When the selection is no longer permitted it returns monthly together with
// ErrBillingCycleTooShort; callers treat the error as a warning and keep the
// returned cycle.
func Check(selected model.BillingCycle, start, end time.Time) (model.BillingCycle, error) {
	return CheckDuration(selected, DurationMonths(start, end))
}

// CheckDuration is Check for a known duration in months.
func CheckDuration(selected model.BillingCycle, durationMonths int) (model.BillingCycle, error) {
	if Allowed(selected, durationMonths) {
		return selected, nil
	}
	return model.CycleMonthly, fmt.Errorf("%w: %s needs %d months, course runs %d",
		model.ErrBillingCycleTooShort, selected, MinMonths(selected), durationMonths)
}

// Projection holds the fee figures of a course before any charge exists.
type Projection struct {
	DurationMonths int
	TotalCycles    int
	TotalFee       decimal.Decimal
}

// CourseDuration returns the course duration in months, preferring the
// explicit DurationMonths over the start/end dates.
func CourseDuration(course model.Course) int {
	if course.DurationMonths > 0 {
		return course.DurationMonths
	}
	if course.StartDate != nil && course.EndDate != nil {
		return DurationMonths(*course.StartDate, *course.EndDate)
	}
	return 0
}

// Project computes total cycles and total fee for a course.
// totalCycles = ceil(duration / cycleMonths), totalFee = fee * totalCycles.
func Project(course model.Course) Projection {
	duration := CourseDuration(course)
	p := Projection{DurationMonths: duration}

	cycle, ok := course.Cycle()
	if !course.IsRecurring() || !ok || cycle.Months() == 0 {
		p.TotalCycles = 1
	} else {
		m := cycle.Months()
		p.TotalCycles = (duration + m - 1) / m
	}
	p.TotalFee = course.Fee.Mul(decimal.NewFromInt(int64(p.TotalCycles)))
	return p
}

// ValidateCourse checks a course's payment configuration. Structural problems
// are ValidationErrors; a recurring cycle longer than the duration allows is
// reported as ErrBillingCycleTooShort.
func ValidateCourse(course model.Course) error {
	if course.ID == "" {
		return model.Invalid("id", "required")
	}
	if err := model.ValidateAmount("fee", course.Fee); err != nil {
		return err
	}
	if course.PaymentDeadlineDays < 0 {
		return model.Invalid("payment_deadline_days", "must not be negative")
	}
	if course.DurationMonths < 0 {
		return model.Invalid("duration_months", "must not be negative")
	}
	if course.StartDate != nil && course.EndDate != nil && course.EndDate.Before(*course.StartDate) {
		return model.Invalid("end_date", "before start date")
	}

	switch course.PaymentType {
	case model.PaymentOneTime:
		if course.BillingCycle != nil {
			return model.Invalid("billing_cycle", "only allowed for recurring courses")
		}
		return nil
	case model.PaymentRecurring:
		cycle, ok := course.Cycle()
		if !ok {
			return model.Invalid("billing_cycle", "required for recurring courses")
		}
		if cycle.Months() == 0 {
			return model.Invalid("billing_cycle", fmt.Sprintf("unknown cycle %q", cycle))
		}
		_, err := CheckDuration(cycle, CourseDuration(course))
		return err
	default:
		return model.Invalid("payment_type", fmt.Sprintf("unknown payment type %q", course.PaymentType))
	}
}
