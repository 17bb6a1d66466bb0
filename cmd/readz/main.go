// Readz watches registered readers' shelf feeds and posts reading updates
// to each group's Discord channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"readz/internal/api"
	"readz/internal/config"
	"readz/internal/discord"
	"readz/internal/feeds"
	"readz/internal/notify"
	"readz/internal/scheduler"
	"readz/internal/storage"
	"readz/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	dataDir := flag.String("data-dir", "./data", "path to data directory")
	flag.Parse()

	// Load a .env file if one exists. Real environment variables still win
	// inside config.Load.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env file")
	}

	// Load configuration (auto-creates default if missing).
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure data directory exists.
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Open database with WAL mode and pragmas.
	db, err := storage.OpenDatabase(filepath.Join(*dataDir, "readz.db"))
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run schema migrations.
	if err := storage.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := storage.NewStore(db)

	// Wire the update pipeline: fetcher → reconciler → composer → Discord.
	composer := &notify.Composer{
		MassThreshold: cfg.Notify.MassUpdateThreshold,
		MaxSectionLen: cfg.Notify.MaxSectionLength,
	}
	notifier := discord.NewClient(cfg.Discord.Token)
	t := tracker.New(store, feeds.NewFetcher(), notifier, composer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Poll shelf feeds on the configured interval.
	sched := scheduler.New(t, time.Duration(cfg.Feeds.IntervalMinutes)*time.Minute)
	go sched.Run(ctx)

	// Serve the health check and admin API.
	srv := &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", cfg.Server.Port),
		Handler: api.NewRouter(store, t),
	}

	go func() {
		slog.Info("starting server", "addr", "http://"+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("shut down")
}
