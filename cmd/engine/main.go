package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/api"
	bookmarkpg "github.com/marketgrid/onboardengine/internal/bookmark/postgres"
	"github.com/marketgrid/onboardengine/internal/config"
	"github.com/marketgrid/onboardengine/internal/database"
	eventpg "github.com/marketgrid/onboardengine/internal/eventstore/postgres"
	indexpg "github.com/marketgrid/onboardengine/internal/indexstore/postgres"
	"github.com/marketgrid/onboardengine/internal/logger"
	"github.com/marketgrid/onboardengine/internal/recovery"
	statepg "github.com/marketgrid/onboardengine/internal/statestore/postgres"
	"github.com/marketgrid/onboardengine/internal/template"
)

// main runs the engine daemon: the long-lived process that keeps a
// tenant's workflows consistent in the background (migrations on boot,
// then the projection/bookmark recovery sweep) and reports liveness and
// readiness to whatever schedules the process. It carries no business
// request surface of its own — operations against the Workflow Engine are
// issued in-process, one invocation at a time, by cmd/enginectl.
func main() {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind environment variables: %v\n", err)
		os.Exit(1)
	}

	configFile, err := config.FindConfigFile("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find config file: %v\n", err)
		os.Exit(1)
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting onboarding workflow engine")

	ctx := context.Background()

	if err := database.RunMigrations(cfg.Database.MigrationConnectionString(), log); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}

	dbProvider, err := database.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbProvider.Close()

	pool, ok := dbProvider.Pool().(*pgxpool.Pool)
	if !ok {
		log.Fatal("database provider is not backed by a pgxpool.Pool", zap.String("provider", cfg.Database.Provider))
	}

	events := eventpg.New(pool, log)
	index := indexpg.New(pool, log)
	state := statepg.New(pool, log)
	bookmarks := bookmarkpg.New(pool, log)

	templates := template.New(log)
	if err := template.LoadAll(ctx, pool, templates); err != nil {
		log.Fatal("failed to load workflow templates", zap.Error(err))
	}
	log.Info("loaded workflow templates", zap.Int("count", len(templates.List())))

	recoveryLoop, err := recovery.New(events, index, state, bookmarks, templates, cfg.Recovery, log)
	if err != nil {
		log.Fatal("failed to initialize recovery loop", zap.Error(err))
	}
	recoveryLoop.Start()

	httpServer := api.New(&cfg.HTTP, dbProvider, log)
	httpServer.SetRecoveryChecker(recoveryLoop)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverErrs := make(chan error, 1)
	go func() {
		serverErrs <- httpServer.Start()
	}()

	log.Info("engine started", zap.String("http_address", cfg.HTTP.Address()))

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErrs:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	if err := recoveryLoop.Stop(); err != nil {
		log.Error("recovery loop shutdown failed", zap.Error(err))
	}

	log.Info("engine stopped")
}
