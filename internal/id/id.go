package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reference prefixes by ledger entry kind.
const (
	PrefixTopUp   = "TOP"
	PrefixCharge  = "CHG"
	PrefixPayment = "PAY"
	PrefixBatch   = "BAT"
)

const refDateLayout = "20060102"

// New returns a random identifier for stored records.
func New() string {
	return uuid.NewString()
}

// FormatReference returns a human-facing reference like "PAY-20250115-0001".
func FormatReference(prefix string, date time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format(refDateLayout), seq)
}

// DayPrefix returns the part of a reference shared by every entry of prefix
// issued on date, e.g. "PAY-20250115-".
func DayPrefix(prefix string, date time.Time) string {
	return prefix + "-" + date.Format(refDateLayout) + "-"
}

// ParseReference parses "PAY-20250115-0001" into prefix, date and sequence.
func ParseReference(ref string) (prefix string, date time.Time, seq int, err error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) != 3 || parts[0] == "" {
		return "", time.Time{}, 0, fmt.Errorf("invalid reference format: %q", ref)
	}

	date, err = time.Parse(refDateLayout, parts[1])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("invalid date in reference %q: %w", ref, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("invalid sequence in reference %q: %w", ref, err)
	}

	return parts[0], date, seq, nil
}

// NextSequence returns the next free sequence for prefix on date, given the
// references already issued. Unparseable references are ignored.
func NextSequence(existing []string, prefix string, date time.Time) int {
	day := date.Format(refDateLayout)
	maxSeq := 0
	for _, ref := range existing {
		p, d, seq, err := ParseReference(ref)
		if err != nil || p != prefix || d.Format(refDateLayout) != day {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1
}

// PrefixFor returns the reference prefix for a transaction type name.
func PrefixFor(kind string) string {
	switch kind {
	case "top_up":
		return PrefixTopUp
	case "charge":
		return PrefixCharge
	case "payment":
		return PrefixPayment
	case "batch":
		return PrefixBatch
	}
	return strings.ToUpper(kind)
}
