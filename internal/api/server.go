// Package api exposes the billing core over HTTP with fiber.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/buildinfo"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/metrics"
	"github.com/edubill-dev/edubill/internal/payment"
)

// RequestTimeout bounds the context handed to services.
const RequestTimeout = 10 * time.Second

// Deps are the services the API serves.
type Deps struct {
	Billing  *billing.Service
	Ledger   *ledger.Service
	Payments *payment.Service
	Metrics  *metrics.Collector // optional
	Logger   *slog.Logger

	// MetricsPath is where the Prometheus handler is mounted. Empty disables it.
	MetricsPath string

	// Commit, if set, runs after every successful write request. The
	// workspace driver uses it to persist the in-memory store.
	Commit func(ctx context.Context) error
}

// Server is the HTTP front of the billing core.
type Server struct {
	app  *fiber.App
	deps Deps
}

// New builds the fiber app and registers every route.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

// App returns the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.deps.Logger.Info("api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return jsonOK(c, "ok", buildinfo.Get())
	})
	if s.deps.MetricsPath != "" && s.deps.Metrics != nil {
		s.app.Get(s.deps.MetricsPath, adaptor.HTTPHandler(s.deps.Metrics.Handler()))
	}

	v1 := s.app.Group("/v1")
	v1.Get("/billing/options", s.billingOptions)

	accounts := v1.Group("/accounts/:id")
	accounts.Get("/obligations", s.obligations)
	accounts.Get("/transactions", s.transactions)
	accounts.Get("/verify", s.verify)
	accounts.Post("/top-ups", s.commit, s.topUp)
	accounts.Post("/charges", s.commit, s.charge)
	accounts.Post("/checkout", s.commit, s.checkout)

	v1.Post("/transactions/:id/execute", s.commit, s.execute)
	v1.Post("/transactions/:id/cancel", s.commit, s.cancel)
	v1.Post("/scheduled/run", s.commit, s.runScheduled)

	v1.Post("/batches/preview", s.previewBatch)
	v1.Post("/batches", s.commit, s.batchTopUp)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Context(), RequestTimeout)
	defer cancel()
	c.SetUserContext(ctx)

	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			return herr
		}
	}
	s.deps.Logger.Info("request",
		"id", c.Locals(requestid.ConfigDefault.ContextKey),
		"method", c.Method(),
		"path", c.OriginalURL(),
		"status", c.Response().StatusCode(),
		"dur", time.Since(start))
	return nil
}

// commit runs the rest of the chain and, if the response succeeded, the
// configured Commit hook.
func (s *Server) commit(c *fiber.Ctx) error {
	if err := c.Next(); err != nil {
		return err
	}
	if s.deps.Commit == nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
		return nil
	}
	if err := s.deps.Commit(c.UserContext()); err != nil {
		s.deps.Logger.ErrorContext(c.UserContext(), "commit failed", "error", err)
		return err
	}
	return nil
}
