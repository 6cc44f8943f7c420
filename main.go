package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lunchbot/config"
	"lunchbot/conversation"
	"lunchbot/handlers"
	"lunchbot/middleware"
	"lunchbot/platform"
	"lunchbot/routes"
	"lunchbot/store"
	"lunchbot/suggest"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "lunchbot:", err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("lunchbot stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Initialize database
	db, err := config.OpenDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	catalog := store.NewCatalog(db)
	filters := store.NewFilters(db)
	sessions := store.NewSessions(db)

	if cfg.SeedFile != "" {
		if err := seedCatalog(catalog, cfg.SeedFile, logger); err != nil {
			return err
		}
	}

	slackClient := platform.New(cfg.SlackBotToken, logger)
	seq := conversation.New(catalog, filters, sessions, suggest.NewEngine(filters, catalog), slackClient, conversation.Options{
		DispatchTimeout:     cfg.DispatchTimeout,
		DispatchConcurrency: cfg.DispatchConcurrency,
		Logger:              logger,
	})

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	var verify gin.HandlerFunc
	if cfg.SlackSigningSecret != "" {
		verify = middleware.SlackSignatureRequired(cfg.SlackSigningSecret, logger)
	} else {
		logger.Warn("SLACK_SIGNING_SECRET is not set; webhook signatures are not checked")
	}
	slackHandler := handlers.NewSlackHandler(seq, slackClient, logger)
	routes.SetupRoutes(r, slackHandler, handlers.NewAPIHandler(catalog, logger), verify)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "db", cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// let in-flight click replies and suggestion DMs finish before the database closes
	slackHandler.Wait()
	seq.Wait()
	logger.Info("server exited")
	return nil
}

// seedCatalog fills an empty catalog from a YAML file.
func seedCatalog(catalog *store.Catalog, path string, logger *slog.Logger) error {
	ctx := context.Background()
	n, err := catalog.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debug("catalog not empty, skipping seed", "restaurants", n)
		return nil
	}
	restaurants, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for i := range restaurants {
		if err := catalog.Add(ctx, &restaurants[i]); err != nil {
			return fmt.Errorf("seed %q: %w", restaurants[i].Name, err)
		}
	}
	logger.Info("catalog seeded", "file", path, "restaurants", len(restaurants))
	return nil
}
