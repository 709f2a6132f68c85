package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"Fedipub/internal/api/middleware"
	"Fedipub/internal/api/routes"
	"Fedipub/internal/config"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/feeds"
	"Fedipub/internal/core/notifications"
	"Fedipub/internal/db/migrations"
	postgresRepo "Fedipub/internal/db/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return err
	}
	logger.Info("connected to database")

	if err := migrations.Up(db); err != nil {
		return err
	}
	logger.Info("migrations completed successfully")

	// Projections subscribe before any repository can emit.
	bus := events.NewBus(logger)
	accountRepo := postgresRepo.NewAccountRepository(db, bus, logger)
	postRepo := postgresRepo.NewPostRepository(db, accountRepo, bus, logger)

	notificationService := notifications.NewService(postgresRepo.NewNotificationRepository(db), postRepo, accountRepo, logger)
	notificationService.Register(bus)
	feedService := feeds.NewService(postgresRepo.NewFeedRepository(db), postRepo, logger)
	feedService.Register(bus)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	r.Use(rateLimiter.Middleware)

	routes.RegisterHealthRoutes(r, db)
	routes.RegisterSiteRoutes(r, accountRepo, logger)
	routes.RegisterAccountRoutes(r, notificationService, feedService, bus, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fedipub starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
