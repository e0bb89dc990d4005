package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/edubill-dev/edubill/internal/audit"
	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/config"
	"github.com/edubill-dev/edubill/internal/gitops"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/metrics"
	"github.com/edubill-dev/edubill/internal/notify"
	"github.com/edubill-dev/edubill/internal/payment"
	"github.com/edubill-dev/edubill/internal/store"
	"github.com/edubill-dev/edubill/internal/store/postgres"
	"github.com/edubill-dev/edubill/internal/workspace"
)

// app wires the services for one command invocation.
type app struct {
	root     string
	cfg      *config.Config
	logger   *slog.Logger
	backend  store.Backend
	metrics  *metrics.Collector
	bus      *notify.Bus
	ledger   *ledger.Service
	billing  *billing.Service
	payments *payment.Service

	// commit persists changes made through backend; a no-op for databases.
	commit func(ctx context.Context) error
	close  func() error
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func workspaceRoot(g *globalFlags) (string, error) {
	root, err := filepath.Abs(g.dir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return root, nil
}

func openApp(ctx context.Context, g *globalFlags) (*app, error) {
	root, err := workspaceRoot(g)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("not an edubill workspace (run edubill init): %w", err)
	}
	envFile := g.envFile
	if envFile != "" && !filepath.IsAbs(envFile) {
		envFile = filepath.Join(root, envFile)
	}
	if err := config.ApplyEnv(cfg, envFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{
		root:   root,
		cfg:    cfg,
		logger: newLogger(g.verbose),
		commit: func(context.Context) error { return nil },
		close:  func() error { return nil },
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.backend = db
		a.close = db.Close
	default:
		st, err := workspace.LoadStore(root)
		if err != nil {
			return nil, err
		}
		ws := &workspace.Workspace{Root: root, Config: cfg, Store: st}
		a.backend = st
		a.commit = func(context.Context) error { return ws.Save() }
	}

	a.metrics = metrics.NewCollector(a.logger)
	a.bus = notify.NewBus(a.logger)
	a.ledger = ledger.NewService(a.backend, audit.NewCSVSink(root), a.metrics, a.logger)
	a.ledger.SetActor(actor())
	stores := a.backend.Stores()
	a.billing = billing.NewService(stores.Enrollments, stores.Courses, stores.Charges, a.logger)
	a.payments = payment.NewService(a.ledger, a.billing, stores.Charges, a.bus, a.metrics, a.logger)

	a.logger.DebugContext(ctx, "workspace opened", "root", root, "driver", cfg.Store.Driver)
	return a, nil
}

func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func historyAuthor() gitops.Author {
	name := actor()
	return gitops.Author{Name: name, Email: name + "@edubill.local"}
}

// record commits the workspace if it is a git repository with changes.
func (a *app) record(ctx context.Context, message string) error {
	repo, ok := gitops.Open(a.root)
	if !ok || a.cfg.Store.Driver == config.DriverPostgres {
		return nil
	}
	hash, err := repo.Record(ctx, message, historyAuthor())
	if err != nil {
		return fmt.Errorf("recording history: %w", err)
	}
	if hash != "" {
		a.logger.DebugContext(ctx, "history recorded", "commit", hash)
	}
	return nil
}

// withApp opens the app, runs fn and, if fn succeeded, saves the workspace
// and records the change in its git history.
func withApp(ctx context.Context, g *globalFlags, fn func(a *app) error) error {
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if err := fn(a); err != nil {
		return err
	}
	if err := a.commit(ctx); err != nil {
		return fmt.Errorf("saving workspace: %w", err)
	}
	return a.record(ctx, g.invocation)
}
