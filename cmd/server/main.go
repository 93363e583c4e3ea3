/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave lifecycle engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Read configuration from the environment
  2. Initialize structured logging (JSON in prod, text in dev)
  3. Initialize SQLite store and seed default policies
  4. Wire the calendar, state machine and notification dispatcher
  5. Start server with graceful shutdown

CONFIGURATION (environment, prefix APP_):
  APP_ADDR       Listen address (default :8080)
  APP_ENV        "prod" or "dev"; selects log format (default dev)
  APP_DB_PATH    SQLite database path, ":memory:" for in-memory
  APP_LOCATION   Site code selecting which local holidays apply
  APP_SHUTDOWN_TIMEOUT  Grace period for in-flight requests (default 30s)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  APP_DB_PATH=./data/leave.db ./server
  APP_ENV=prod APP_ADDR=:3000 ./server

SEE ALSO:
  - api/server.go: router configuration
  - leave/machine.go: the state machine being served
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/sqlite"
)

// Config is read from the environment with the APP_ prefix.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	Env             string        `envconfig:"ENV" default:"dev"`
	DBPath          string        `envconfig:"DB_PATH" default:"leave.db"`
	Location        string        `envconfig:"LOCATION" default:""`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("APP", &cfg); err != nil {
		slog.Error("failed to read configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SeedDefaultPolicies(ctx); err != nil {
		logger.Error("failed to seed default policies", "error", err)
		os.Exit(1)
	}

	machine := &leave.Machine{
		Store:     store,
		Calendar:  &calendar.Calendar{Holidays: store, Closures: store, Location: cfg.Location},
		Policies:  store,
		Directory: store,
		Notifier:  &notify.Async{Next: &notify.LogDispatcher{Logger: logger}, Logger: logger},
		Logger:    logger,
	}

	router := api.NewRouter(api.NewHandler(machine, store))

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "env", cfg.Env, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newLogger builds the process logger: JSON in prod, human-readable text
// everywhere else.
func newLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
