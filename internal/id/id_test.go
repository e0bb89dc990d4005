package id

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan15 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func TestFormatReference(t *testing.T) {
	tests := []struct {
		prefix string
		seq    int
		want   string
	}{
		{PrefixPayment, 1, "PAY-20250115-0001"},
		{PrefixTopUp, 42, "TOP-20250115-0042"},
		{PrefixBatch, 12345, "BAT-20250115-12345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatReference(tt.prefix, jan15, tt.seq))
	}
}

func TestParseReference(t *testing.T) {
	prefix, date, seq, err := ParseReference("CHG-20250115-0007")
	require.NoError(t, err)
	assert.Equal(t, PrefixCharge, prefix)
	assert.Equal(t, 2025, date.Year())
	assert.Equal(t, time.January, date.Month())
	assert.Equal(t, 15, date.Day())
	assert.Equal(t, 7, seq)
}

func TestParseReference_Errors(t *testing.T) {
	for _, ref := range []string{"", "PAY", "PAY-2025-0001", "PAY-20250115-x", "-20250115-0001"} {
		_, _, _, err := ParseReference(ref)
		assert.Error(t, err, "ref %q", ref)
	}
}

func TestNextSequence(t *testing.T) {
	existing := []string{
		"PAY-20250115-0001",
		"PAY-20250115-0003",
		"TOP-20250115-0009",
		"PAY-20250114-0010",
		"garbage",
	}
	assert.Equal(t, 4, NextSequence(existing, PrefixPayment, jan15))
	assert.Equal(t, 10, NextSequence(existing, PrefixTopUp, jan15))
	assert.Equal(t, 1, NextSequence(existing, PrefixCharge, jan15))
	assert.Equal(t, 1, NextSequence(nil, PrefixPayment, jan15))
}

func TestNew(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestPrefixFor(t *testing.T) {
	assert.Equal(t, PrefixTopUp, PrefixFor("top_up"))
	assert.Equal(t, PrefixCharge, PrefixFor("charge"))
	assert.Equal(t, PrefixPayment, PrefixFor("payment"))
	assert.Equal(t, PrefixBatch, PrefixFor("batch"))
	assert.Equal(t, "REFUND", PrefixFor("refund"))
}

func TestDayPrefix(t *testing.T) {
	late := time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC)
	prefix := DayPrefix(PrefixPayment, late)
	assert.Equal(t, "PAY-20250115-", prefix)
	assert.True(t, strings.HasPrefix(FormatReference(PrefixPayment, late, 12), prefix))
}
