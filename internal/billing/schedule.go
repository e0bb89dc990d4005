package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// MaxCycles bounds the schedule of a single enrollment.
const MaxCycles = 24

// ScheduleInput is everything Generate needs for one enrollment.
type ScheduleInput struct {
	PaymentType         model.PaymentType
	BillingCycle        *model.BillingCycle
	Fee                 decimal.Decimal
	PaymentDeadlineDays int
	CourseEnd           *time.Time
	DurationMonths      int // bounds the schedule when CourseEnd is nil
	EnrollmentStart     time.Time
}

// InputFor builds the schedule input for an enrollment in course.
func InputFor(course model.Course, enrollment model.Enrollment) ScheduleInput {
	return ScheduleInput{
		PaymentType:         course.PaymentType,
		BillingCycle:        course.BillingCycle,
		Fee:                 course.Fee,
		PaymentDeadlineDays: course.PaymentDeadlineDays,
		CourseEnd:           course.EndDate,
		DurationMonths:      course.DurationMonths,
		EnrollmentStart:     enrollment.StartDate,
	}
}

// Cycle is one scheduled fee obligation of an enrollment.
type Cycle struct {
	Number  int // 1-based within the enrollment
	Start   time.Time
	DueDate time.Time
	Period  string // e.g. "Q1 2025"
	Label   string // e.g. "Cycle 1 - Q1 2025"
	Amount  decimal.Decimal
}

// Generate produces the ordered cycle list for one enrollment. It has no side
// effects and returns identical output for identical input.
//
// A recurring input without a known billing cycle yields no cycles; such a
// course fails ValidateCourse.
func Generate(in ScheduleInput) []Cycle {
	start := dateOnly(in.EnrollmentStart)

	if in.PaymentType != model.PaymentRecurring {
		return []Cycle{newCycle(1, start, OneTimePeriod, in)}
	}
	if in.BillingCycle == nil || in.BillingCycle.Months() == 0 {
		return nil
	}
	cycle := *in.BillingCycle
	step := cycle.Months()

	var end *time.Time
	switch {
	case in.CourseEnd != nil:
		e := dateOnly(*in.CourseEnd)
		end = &e
	case in.DurationMonths > 0:
		e := addMonths(start, in.DurationMonths).AddDate(0, 0, -1)
		end = &e
	}

	cycles := make([]Cycle, 0, MaxCycles)
	for i := 0; i < MaxCycles; i++ {
		cycleStart := addMonths(start, i*step)
		if end != nil && cycleStart.After(*end) {
			break
		}
		cycles = append(cycles, newCycle(i+1, cycleStart, PeriodLabel(cycle, cycleStart), in))
	}
	return cycles
}

func newCycle(n int, start time.Time, period string, in ScheduleInput) Cycle {
	return Cycle{
		Number:  n,
		Start:   start,
		DueDate: start.AddDate(0, 0, in.PaymentDeadlineDays),
		Period:  period,
		Label:   FullLabel(n, period),
		Amount:  in.Fee,
	}
}
