package httpserver

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"datacache/internal/config"
	"datacache/internal/telemetry"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Config   *config.FinalConfig
	Data     DataSource
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer
	Logger   log.Interface
}

// Server wraps Fiber app and configuration.
type Server struct {
	app *fiber.App
	cfg *config.FinalConfig
	log log.Interface
}

// New builds a Fiber server with common middlewares.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Log
	}

	cfg := deps.Config
	app := fiber.New(fiber.Config{
		AppName:               "datacache",
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:           time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestID())
	if deps.Metrics != nil {
		app.Use(instrument(deps.Metrics))
	}

	RegisterRoutes(app, deps)

	return &Server{app: app, cfg: cfg, log: deps.Logger}
}

// App exposes the underlying Fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start runs Fiber server and handles graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := cfgAddress(s.cfg.Server.Address)
	s.log.WithField("addr", addr).Info("listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func cfgAddress(addr string) string {
	if addr == "" {
		return ":" // default Fiber listens on 0.0.0.0
	}
	return addr
}
