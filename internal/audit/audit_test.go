package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testEvent() Event {
	return Event{
		Timestamp: testTime,
		Actor:     "cli",
		Action:    ActionPayment,
		AccountID: "acct-1",
		Reference: "PAY-20250115-0001",
		Details:   "paid 420.00 (balance 100.00, card 320.00)",
	}
}

func TestCSVSink_NewFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	require.NoError(t, sink.Emit(context.Background(), testEvent()))

	data, err := os.ReadFile(filepath.Join(dir, LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), Header)

	events, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, testEvent(), events[0])
}

func TestCSVSink_Appends(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	require.NoError(t, sink.Emit(context.Background(), testEvent()))

	e2 := testEvent()
	e2.Action = ActionTopUp
	e2.Details = "details, with a comma"
	require.NoError(t, sink.Emit(context.Background(), e2))

	events, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionPayment, events[0].Action)
	assert.Equal(t, "details, with a comma", events[1].Details)
}

func TestRead_MissingFile(t *testing.T) {
	events, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUnmarshalEvent_Errors(t *testing.T) {
	_, err := UnmarshalEvent([]string{"a", "b"})
	assert.Error(t, err)

	_, err = UnmarshalEvent([]string{"not-a-time", "", "", "", "", ""})
	assert.Error(t, err)
}

func TestMemorySink(t *testing.T) {
	var sink MemorySink
	require.NoError(t, sink.Emit(context.Background(), testEvent()))
	require.NoError(t, sink.Emit(context.Background(), Event{Action: ActionTopUp}))

	assert.Len(t, sink.Events(), 2)
	assert.Equal(t, []string{ActionPayment, ActionTopUp}, sink.Actions())
}
