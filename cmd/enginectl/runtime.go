package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	bookmarkpg "github.com/marketgrid/onboardengine/internal/bookmark/postgres"
	"github.com/marketgrid/onboardengine/internal/config"
	"github.com/marketgrid/onboardengine/internal/database"
	"github.com/marketgrid/onboardengine/internal/engine"
	eventpg "github.com/marketgrid/onboardengine/internal/eventstore/postgres"
	indexpg "github.com/marketgrid/onboardengine/internal/indexstore/postgres"
	"github.com/marketgrid/onboardengine/internal/indexstore"
	"github.com/marketgrid/onboardengine/internal/logger"
	notifymock "github.com/marketgrid/onboardengine/internal/notify/mock"
	"github.com/marketgrid/onboardengine/internal/provisioning/httpgateway"
	"github.com/marketgrid/onboardengine/internal/saga"
	statepg "github.com/marketgrid/onboardengine/internal/statestore/postgres"
	"github.com/marketgrid/onboardengine/internal/statestore"
	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/stephandler/handlers"
	"github.com/marketgrid/onboardengine/internal/template"
	"github.com/marketgrid/onboardengine/internal/tenant"
	tenantpg "github.com/marketgrid/onboardengine/internal/tenant/postgres"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
)

// runtime holds the per-invocation wiring a subcommand needs: the engine
// itself plus the read-only stores commands like get/list query directly,
// and database cleanup. It is assembled once in root.go's
// PersistentPreRunE and torn down by the root command's PersistentPostRun.
type runtime struct {
	engine    *engine.Engine
	index     indexstore.Store
	state     statestore.Store
	logger    *zap.Logger
	dbCleanup func()
}

var rt *runtime

// buildRuntime wires a full in-process engine from the same configuration
// source cmd/engine uses. It does not run migrations: enginectl assumes a
// running engine daemon owns schema migration, and simply connects.
func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		return nil, fmt.Errorf("enginectl: bind environment: %w", err)
	}

	configFlag, _ := cmd.Flags().GetString("config")
	configFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return nil, fmt.Errorf("enginectl: find config file: %w", err)
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			return nil, fmt.Errorf("enginectl: load config file: %w", err)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("enginectl: load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("enginectl: init logger: %w", err)
	}

	ctx := context.Background()
	dbProvider, err := database.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("enginectl: init database: %w", err)
	}

	pool, ok := dbProvider.Pool().(*pgxpool.Pool)
	if !ok {
		dbProvider.Close()
		return nil, fmt.Errorf("enginectl: database provider %q is not backed by pgxpool.Pool", cfg.Database.Provider)
	}

	events := eventpg.New(pool, log)
	index := indexpg.New(pool, log)
	state := statepg.New(pool, log)
	bookmarks := bookmarkpg.New(pool, log)

	tenants, err := tenantpg.New(pool, log)
	if err != nil {
		dbProvider.Close()
		return nil, fmt.Errorf("enginectl: init tenant repository: %w", err)
	}

	templates := template.New(log)
	if err := template.LoadAll(ctx, pool, templates); err != nil {
		dbProvider.Close()
		return nil, fmt.Errorf("enginectl: load templates: %w", err)
	}

	gateway := httpgateway.New(cfg.Engine.Step.DefaultStartToCloseTimeout, log)
	retryCfg := cfg.Engine.Handler.Retry
	configuredBackoff := func() *backoff.ExponentialBackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = retryCfg.InitialInterval
		b.MaxInterval = retryCfg.MaxInterval
		b.Multiplier = retryCfg.Multiplier
		return b
	}
	apiCallRetry := handlers.DefaultRetryPolicy(retryCfg.MaxAttempts)
	apiCallRetry.BaseBackoff = configuredBackoff()

	handlerRegistry := stephandler.New(log)
	for _, h := range []stephandler.Handler{
		handlers.NewForm(),
		handlers.NewApproval(cfg.Engine.Bookmark.DefaultExpiry),
		handlers.NewAPICall(gateway, apiCallRetry, log),
		handlers.NewNotification(notifymock.New(), log),
		handlers.NewValidation(),
		handlers.NewDecision(),
		handlers.NewManual(cfg.Engine.Bookmark.DefaultExpiry),
	} {
		if err := handlerRegistry.Register(h); err != nil {
			dbProvider.Close()
			return nil, fmt.Errorf("enginectl: register step handler: %w", err)
		}
	}
	handlerRegistry.Freeze()

	sagaRetry := saga.DefaultRetryPolicy(retryCfg.MaxAttempts)
	sagaRetry.BaseBackoff = configuredBackoff()
	sagaCoordinator := saga.New(handlerRegistry, sagaRetry, log)

	eng := engine.New(events, index, state, templates, handlerRegistry, sagaCoordinator, bookmarks, tenants, log)

	return &runtime{
		engine:    eng,
		index:     index,
		state:     state,
		logger:    log,
		dbCleanup: func() { dbProvider.Close(); log.Sync() },
	}, nil
}

// actorContext builds the tenantctx.Context a subcommand runs its
// operation as, from the --actor-id/--role/--tenant-id persistent flags.
func actorContext(cmd *cobra.Command) (tenantctx.Context, error) {
	roleFlag, _ := cmd.Flags().GetString("role")
	actorIDFlag, _ := cmd.Flags().GetString("actor-id")
	tenantIDFlag, _ := cmd.Flags().GetString("tenant-id")

	role := tenant.Role(roleFlag)

	actorID := uuid.New()
	if actorIDFlag != "" {
		parsed, err := uuid.Parse(actorIDFlag)
		if err != nil {
			return tenantctx.Context{}, fmt.Errorf("enginectl: invalid --actor-id: %w", err)
		}
		actorID = parsed
	}

	actor := tenant.Actor{ID: actorID, Role: role}
	var tenantID uuid.UUID
	if role != tenant.RoleMarketOps {
		if tenantIDFlag == "" {
			return tenantctx.Context{}, fmt.Errorf("enginectl: --tenant-id is required for role %s", role)
		}
		parsed, err := uuid.Parse(tenantIDFlag)
		if err != nil {
			return tenantctx.Context{}, fmt.Errorf("enginectl: invalid --tenant-id: %w", err)
		}
		tenantID = parsed
		actor.TenantID = &tenantID
	} else if tenantIDFlag != "" {
		parsed, err := uuid.Parse(tenantIDFlag)
		if err != nil {
			return tenantctx.Context{}, fmt.Errorf("enginectl: invalid --tenant-id: %w", err)
		}
		tenantID = parsed
	}

	return tenantctx.New(actor, tenantID)
}

// performedBy resolves the --performed-by flag, defaulting to the
// hostname-qualified actor id when the operator does not name themself.
func performedBy(cmd *cobra.Command, actorID uuid.UUID) string {
	if who, _ := cmd.Flags().GetString("performed-by"); who != "" {
		return who
	}
	host, err := os.Hostname()
	if err != nil {
		host = "enginectl"
	}
	return fmt.Sprintf("%s@%s", actorID, host)
}
