package billing

import (
	"fmt"
	"time"

	"github.com/edubill-dev/edubill/internal/model"
)

// OneTimePeriod is the period label of a one-time course's single cycle.
const OneTimePeriod = "One-time"

// PeriodLabel names the time window a cycle starting at start covers.
func PeriodLabel(cycle model.BillingCycle, start time.Time) string {
	switch cycle {
	case model.CycleMonthly:
		return start.Format("Jan 2006")
	case model.CycleQuarterly:
		return fmt.Sprintf("Q%d %d", (int(start.Month())-1)/3+1, start.Year())
	case model.CycleBiAnnually:
		half := 1
		if start.Month() > time.June {
			half = 2
		}
		return fmt.Sprintf("H%d %d", half, start.Year())
	case model.CycleAnnually:
		return fmt.Sprintf("%d", start.Year())
	}
	return OneTimePeriod
}

// FullLabel is the label a fee run writes on a cycle's charge record.
func FullLabel(n int, period string) string {
	return fmt.Sprintf("Cycle %d - %s", n, period)
}
