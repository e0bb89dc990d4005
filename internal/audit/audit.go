// Package audit records balance-affecting events to a write-only log.
package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one row in the audit log.
type Event struct {
	Timestamp time.Time
	Actor     string
	Action    string
	AccountID string
	Reference string
	Details   string
}

// Actions emitted by the billing core.
const (
	ActionTopUp          = "top_up"
	ActionCharge         = "charge"
	ActionPayment        = "payment"
	ActionSchedule       = "schedule"
	ActionExecute        = "execute_scheduled"
	ActionCancel         = "cancel_scheduled"
	ActionBatchTopUp     = "batch_top_up"
	ActionBatchFailure   = "batch_top_up_failed"
	ActionUnmatchedCycle = "unmatched_cycle"
)

// Header is the CSV header for audit-log.csv.
const Header = "timestamp,actor,action,account_id,reference,details"

// LogFile is the audit log location relative to the workspace root.
const LogFile = "logs/audit-log.csv"

const (
	numFields    = 6
	colTimestamp = 0
	colActor     = 1
	colAction    = 2
	colAccountID = 3
	colReference = 4
	colDetails   = 5
)

// MarshalEvent converts an Event to a CSV row.
func MarshalEvent(e Event) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colActor] = e.Actor
	row[colAction] = e.Action
	row[colAccountID] = e.AccountID
	row[colReference] = e.Reference
	row[colDetails] = e.Details
	return row
}

// UnmarshalEvent converts a CSV row to an Event.
func UnmarshalEvent(record []string) (Event, error) {
	if len(record) != numFields {
		return Event{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Event{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	return Event{
		Timestamp: ts,
		Actor:     record[colActor],
		Action:    record[colAction],
		AccountID: record[colAccountID],
		Reference: record[colReference],
		Details:   record[colDetails],
	}, nil
}

// CSVSink appends events to <root>/logs/audit-log.csv.
type CSVSink struct {
	root string
	mu   sync.Mutex
}

// NewCSVSink returns a sink writing under root.
func NewCSVSink(root string) *CSVSink {
	return &CSVSink{root: root}
}

// Emit appends one event, creating the file and header if needed.
func (s *CSVSink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, LogFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := cw.Write(MarshalEvent(e)); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all events from <root>/logs/audit-log.csv.
// Returns an empty slice if the file does not exist.
func Read(root string) ([]Event, error) {
	f, err := os.Open(filepath.Join(root, LogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEvents(f)
}

func readEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	events := make([]Event, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := UnmarshalEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (s *MemorySink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Actions returns the action of every recorded event, in order.
func (s *MemorySink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}
