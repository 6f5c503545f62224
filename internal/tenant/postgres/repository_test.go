package postgres

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketgrid/onboardengine/internal/tenant"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// getMigrationsPath returns the path to the database migrations directory.
func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	parentDir := filepath.Dir(dir)      // internal/tenant
	parentDir = filepath.Dir(parentDir) // internal
	return filepath.Join(parentDir, "database", "migrations")
}

func setupTestRepo(t *testing.T) (*Repository, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %s", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %s", err)
	}

	dsn := "postgres://testuser:testpass@" + host + ":" + port.Port() + "/testdb?sslmode=disable"

	migrationPath := "file://" + getMigrationsPath()
	m, err := migrate.New(migrationPath, dsn)
	if err != nil {
		t.Fatalf("failed to create migrate instance: %s", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to run migrations: %s", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create pool: %s", err)
	}

	logger, _ := zap.NewDevelopment()
	repo, err := New(pool, logger)
	if err != nil {
		t.Fatalf("failed to create repository: %s", err)
	}

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func createTestTenant(t *testing.T, name string) *tenant.Tenant {
	t.Helper()
	return &tenant.Tenant{
		Name:   name,
		Status: tenant.StatusOnboarding,
		Labels: map[string]string{"env": "test"},
	}
}

func TestRepository_CreateTenant(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tn := createTestTenant(t, "test-tenant")

	if err := repo.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	if tn.ID == uuid.Nil {
		t.Error("CreateTenant() did not set ID")
	}
	if tn.CreatedAt.IsZero() {
		t.Error("CreateTenant() did not set CreatedAt")
	}
	if tn.UpdatedAt.IsZero() {
		t.Error("CreateTenant() did not set UpdatedAt")
	}
	if tn.Version != 1 {
		t.Errorf("CreateTenant() Version = %d, want 1", tn.Version)
	}
}

func TestRepository_CreateTenant_Duplicate(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenant1 := createTestTenant(t, "duplicate-tenant")
	tenant2 := createTestTenant(t, "duplicate-tenant")

	if err := repo.CreateTenant(ctx, tenant1); err != nil {
		t.Fatalf("CreateTenant() first insert error = %v", err)
	}

	err := repo.CreateTenant(ctx, tenant2)
	if err != tenant.ErrTenantExists {
		t.Errorf("CreateTenant() duplicate error = %v, want %v", err, tenant.ErrTenantExists)
	}
}

func TestRepository_GetTenant(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	original := createTestTenant(t, "get-tenant")
	if err := repo.CreateTenant(ctx, original); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	retrieved, err := repo.GetTenantByName(ctx, "get-tenant")
	if err != nil {
		t.Fatalf("GetTenantByName() error = %v", err)
	}

	if retrieved.ID != original.ID {
		t.Errorf("GetTenant() ID = %v, want %v", retrieved.ID, original.ID)
	}
	if retrieved.Name != original.Name {
		t.Errorf("GetTenantByName() Name = %v, want %v", retrieved.Name, original.Name)
	}
	if retrieved.Status != original.Status {
		t.Errorf("GetTenantByName() Status = %v, want %v", retrieved.Status, original.Status)
	}
	if retrieved.Labels["env"] != "test" {
		t.Errorf("GetTenantByName() Labels[env] = %v, want test", retrieved.Labels["env"])
	}
}

func TestRepository_GetTenant_NotFound(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	_, err := repo.GetTenantByName(ctx, "nonexistent")
	if err != tenant.ErrTenantNotFound {
		t.Errorf("GetTenantByName() error = %v, want %v", err, tenant.ErrTenantNotFound)
	}
}

func TestRepository_UpdateTenant(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tn := createTestTenant(t, "update-tenant")
	if err := repo.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	originalVersion := tn.Version
	tn.Status = tenant.StatusActive
	tn.Labels["env"] = "prod"

	if err := repo.UpdateTenant(ctx, tn); err != nil {
		t.Fatalf("UpdateTenant() error = %v", err)
	}

	if tn.Version != originalVersion+1 {
		t.Errorf("UpdateTenant() Version = %d, want %d", tn.Version, originalVersion+1)
	}

	retrieved, err := repo.GetTenantByName(ctx, "update-tenant")
	if err != nil {
		t.Fatalf("GetTenantByName() error = %v", err)
	}

	if retrieved.Status != tenant.StatusActive {
		t.Errorf("UpdateTenant() Status = %v, want %v", retrieved.Status, tenant.StatusActive)
	}
	if retrieved.Labels["env"] != "prod" {
		t.Errorf("UpdateTenant() Labels[env] = %v, want prod", retrieved.Labels["env"])
	}
}

func TestRepository_UpdateTenant_VersionConflict(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tn := createTestTenant(t, "conflict-tenant")
	if err := repo.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	concurrent := tn.Clone()
	concurrent.Status = tenant.StatusActive
	if err := repo.UpdateTenant(ctx, concurrent); err != nil {
		t.Fatalf("UpdateTenant() first update error = %v", err)
	}

	tn.Status = tenant.StatusInactive // stale version
	err := repo.UpdateTenant(ctx, tn)
	if err != tenant.ErrVersionConflict {
		t.Errorf("UpdateTenant() error = %v, want %v", err, tenant.ErrVersionConflict)
	}
}

func TestRepository_DeleteTenant(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tn := createTestTenant(t, "delete-tenant")
	if err := repo.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	if err := repo.DeleteTenant(ctx, tn.ID); err != nil {
		t.Fatalf("DeleteTenant() error = %v", err)
	}

	if _, err := repo.GetTenantByID(ctx, tn.ID); err != tenant.ErrTenantNotFound {
		t.Fatalf("GetTenantByID() after delete error = %v, want %v", err, tenant.ErrTenantNotFound)
	}
}

func TestRepository_StateTransitionHistory(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tn := createTestTenant(t, "history-tenant")
	if err := repo.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	transition := tenant.NewStateTransition(tn, tenant.StatusActive, "onboarding complete", "ops@example.com")
	if err := repo.RecordStateTransition(ctx, transition); err != nil {
		t.Fatalf("RecordStateTransition() error = %v", err)
	}

	history, err := repo.GetStateHistory(ctx, tn.ID)
	if err != nil {
		t.Fatalf("GetStateHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("GetStateHistory() len = %d, want 1", len(history))
	}
	if history[0].ToStatus != tenant.StatusActive {
		t.Errorf("GetStateHistory() ToStatus = %v, want %v", history[0].ToStatus, tenant.StatusActive)
	}
}

func TestRepository_ActorLifecycle(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tn := createTestTenant(t, "actor-tenant")
	if err := repo.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	admin := &tenant.Actor{Role: tenant.RoleTenantAdmin, TenantID: &tn.ID}
	if err := repo.CreateActor(ctx, admin); err != nil {
		t.Fatalf("CreateActor() error = %v", err)
	}
	if admin.ID == uuid.Nil {
		t.Error("CreateActor() did not set ID")
	}

	retrieved, err := repo.GetActor(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetActor() error = %v", err)
	}
	if retrieved.Role != tenant.RoleTenantAdmin {
		t.Errorf("GetActor() Role = %v, want %v", retrieved.Role, tenant.RoleTenantAdmin)
	}

	ops := &tenant.Actor{Role: tenant.RoleMarketOps}
	if err := repo.CreateActor(ctx, ops); err != nil {
		t.Fatalf("CreateActor() market_ops error = %v", err)
	}

	actors, err := repo.ListActorsForTenant(ctx, tn.ID)
	if err != nil {
		t.Fatalf("ListActorsForTenant() error = %v", err)
	}
	if len(actors) != 1 {
		t.Fatalf("ListActorsForTenant() len = %d, want 1", len(actors))
	}
}

func TestRepository_GetActor_NotFound(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	_, err := repo.GetActor(ctx, uuid.New())
	if err != tenant.ErrActorNotFound {
		t.Errorf("GetActor() error = %v, want %v", err, tenant.ErrActorNotFound)
	}
}
