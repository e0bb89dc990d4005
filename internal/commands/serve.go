package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/api"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/scheduler"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	var addr string
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			return runServe(ctx, a, addr, a.cfg.Scheduler.Enabled && !noScheduler)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from edubill.yaml)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not execute scheduled entries")

	return cmd
}

func runServe(ctx context.Context, a *app, addr string, withScheduler bool) error {
	if withScheduler {
		sched, err := scheduler.New(a.cfg.Scheduler.Cron, a.ledger, a.logger)
		if err != nil {
			return err
		}
		sched.AfterRun = func(ctx context.Context, report ledger.ExecutionReport) error {
			if len(report.Executed) == 0 {
				return nil
			}
			return a.commit(ctx)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	srv := api.New(api.Deps{
		Billing:     a.billing,
		Ledger:      a.ledger,
		Payments:    a.payments,
		Metrics:     a.metrics,
		Logger:      a.logger,
		MetricsPath: a.cfg.Server.MetricsPath,
		Commit:      a.commit,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(addr) }()

	select {
	case err := <-errc:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down: %w", err)
	}
	return a.commit(shutdownCtx)
}
