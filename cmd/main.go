package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/app"
	"github.com/ukydev/vehicle-ledger/internal/auth"
	"github.com/ukydev/vehicle-ledger/internal/config"
	"github.com/ukydev/vehicle-ledger/internal/handlers"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Error("Failed to close store")
		}
	}()

	l := app.NewLedger(store, cfg)

	scheduler := reminders.NewScheduler(l.Reminders(), app.NewNotifier(cfg), cfg.Reminders.Schedule)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if cfg.AuthDisabled {
		log.Warn("Authentication is disabled")
	}
	server := newServer(cfg, handlers.NewRouter(l, handlers.RouterConfig{
		Auth:         auth.NewService(cfg.JWTSecret, cfg.JWTExpiry),
		Owners:       store,
		AuthDisabled: cfg.AuthDisabled,
		RateLimit:    cfg.RateLimit,
	}))

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": server.Addr, "driver": cfg.DBDriver}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
