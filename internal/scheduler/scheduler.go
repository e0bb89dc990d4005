// Package scheduler runs due scheduled ledger entries on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edubill-dev/edubill/internal/ledger"
)

// DefaultTimeout bounds a single run.
const DefaultTimeout = 4 * time.Minute

// Runner executes pending entries due on or before asOf.
type Runner interface {
	ExecuteDue(ctx context.Context, asOf time.Time) (ledger.ExecutionReport, error)
}

// Scheduler wraps a cron instance with a single job that calls Runner.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	// AfterRun, if set, is called after every run with its report, for
	// callers that need to persist the results.
	AfterRun func(ctx context.Context, report ledger.ExecutionReport) error
}

// New creates a Scheduler that runs on spec (standard cron syntax or
// descriptors such as "@every 1m"). Runs never overlap.
func New(spec string, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		runner:  runner,
		logger:  logger,
		now:     time.Now,
		timeout: DefaultTimeout,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return s, nil
}

// SetClock replaces the time source used as the due cut-off.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins running in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "next", s.Next())
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running job
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the time of the next run, or zero if the scheduler is stopped.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
	}
}

// RunOnce executes everything due now.
func (s *Scheduler) RunOnce(ctx context.Context) (ledger.ExecutionReport, error) {
	asOf := s.now()
	report, err := s.runner.ExecuteDue(ctx, asOf)
	if err != nil {
		return ledger.ExecutionReport{}, err
	}
	if len(report.Executed) > 0 || len(report.Failed) > 0 {
		s.logger.InfoContext(ctx, "scheduled entries processed",
			"as_of", asOf.Format(time.RFC3339),
			"executed", len(report.Executed),
			"failed", len(report.Failed))
	}
	if s.AfterRun != nil {
		if err := s.AfterRun(ctx, report); err != nil {
			return report, fmt.Errorf("after run: %w", err)
		}
	}
	return report, nil
}

// cronLogger routes cron's own messages, such as skipped overlapping runs,
// to slog. Routine info is logged at debug level.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
