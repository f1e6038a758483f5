package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/cabinshare/internal/config"
	"github.com/dukerupert/cabinshare/internal/database"
	"github.com/dukerupert/cabinshare/internal/logging"
	"github.com/dukerupert/cabinshare/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(cfg, db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.RateLimiter().RunCleanup(ctx, time.Minute)
	go cleanupExpired(ctx, srv, logger.With("component", "cleanup"))

	srv.TurnScheduler().Start(ctx)
	srv.BackupManager().Start(ctx, cfg.SchedulerInterval)
	if ps := srv.PushScheduler(); ps != nil {
		ps.Start(ctx)
	} else {
		logger.Info("web push not configured, payment reminders disabled")
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("cabinshare running", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	cancel()
	srv.TurnScheduler().Stop()
	srv.BackupManager().Stop()
	if ps := srv.PushScheduler(); ps != nil {
		ps.Stop()
	}
	srv.Notifier().Wait()
}

// cleanupExpired purges expired sessions and login codes every hour.
func cleanupExpired(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("delete expired sessions", "error", err)
			} else if n > 0 {
				logger.Debug("deleted expired sessions", "count", n)
			}
			if n, err := srv.MagicLinkStore().DeleteExpired(); err != nil {
				logger.Error("delete expired login codes", "error", err)
			} else if n > 0 {
				logger.Debug("deleted expired login codes", "count", n)
			}
		}
	}
}
