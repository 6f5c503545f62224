package postgres

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/bookmark"
	"github.com/marketgrid/onboardengine/internal/tenant"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	parentDir := filepath.Dir(dir)      // internal/bookmark
	parentDir = filepath.Dir(parentDir) // internal
	return filepath.Join(parentDir, "database", "migrations")
}

func setupTestStore(t *testing.T) (*Store, *pgxpool.Pool, func()) {
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

	m, err := migrate.New("file://"+getMigrationsPath(), dsn)
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
	store := New(pool, logger)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return store, pool, cleanup
}

// seedWorkflow inserts the minimal workflow_index row a bookmark needs in
// order to resolve its tenant.
func seedWorkflow(t *testing.T, pool *pgxpool.Pool, workflowID, tenantID uuid.UUID) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO workflow_index (id, tenant_id, template_id, template_version, market_role, status, created_by, created_at, updated_at)
		 VALUES ($1,$2,$3,1,'generator','in_progress','test-actor',NOW(),NOW())`,
		workflowID, tenantID, uuid.New(),
	)
	require.NoError(t, err)
}

func tenantCtx(t *testing.T, tenantID uuid.UUID) tenantctx.Context {
	t.Helper()
	tc, err := tenantctx.New(tenant.Actor{ID: uuid.New(), Role: tenant.RoleTenantAdmin, TenantID: &tenantID}, tenantID)
	require.NoError(t, err)
	return tc
}

func TestStore_Create_EnforcesOneActivePerStep(t *testing.T) {
	store, pool, cleanup := setupTestStore(t)
	defer cleanup()

	tenantID, workflowID := uuid.New(), uuid.New()
	seedWorkflow(t, pool, workflowID, tenantID)
	tc := tenantCtx(t, tenantID)

	b1 := workflow.Bookmark{BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "compliance", Kind: workflow.BookmarkApproval, Active: true, CreatedAt: time.Now()}
	require.NoError(t, store.Create(context.Background(), tc, b1))

	b2 := workflow.Bookmark{BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "compliance", Kind: workflow.BookmarkApproval, Active: true, CreatedAt: time.Now()}
	err := store.Create(context.Background(), tc, b2)
	assert.ErrorIs(t, err, workflow.ErrConflictingWrite)
}

func TestStore_Consume_IsNotRepeatable(t *testing.T) {
	store, pool, cleanup := setupTestStore(t)
	defer cleanup()

	tenantID, workflowID := uuid.New(), uuid.New()
	seedWorkflow(t, pool, workflowID, tenantID)
	tc := tenantCtx(t, tenantID)

	b := workflow.Bookmark{BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "compliance", Kind: workflow.BookmarkApproval, Active: true, CreatedAt: time.Now()}
	require.NoError(t, store.Create(context.Background(), tc, b))

	_, err := store.Consume(context.Background(), tc, b.BookmarkID)
	require.NoError(t, err)

	_, err = store.Consume(context.Background(), tc, b.BookmarkID)
	assert.ErrorIs(t, err, workflow.ErrBookmarkConsumed)
}

func TestStore_Get_CrossTenantLookupReturnsNotFound(t *testing.T) {
	store, pool, cleanup := setupTestStore(t)
	defer cleanup()

	owner, other, workflowID := uuid.New(), uuid.New(), uuid.New()
	seedWorkflow(t, pool, workflowID, owner)

	b := workflow.Bookmark{BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "compliance", Kind: workflow.BookmarkApproval, Active: true, CreatedAt: time.Now()}
	require.NoError(t, store.Create(context.Background(), tenantCtx(t, owner), b))

	_, err := store.Get(context.Background(), tenantCtx(t, other), b.BookmarkID)
	assert.ErrorIs(t, err, bookmark.ErrNotFound)
}

func TestStore_ListExpired_OnlyReturnsPastDeadlineActiveBookmarks(t *testing.T) {
	store, pool, cleanup := setupTestStore(t)
	defer cleanup()

	tenantID, workflowID := uuid.New(), uuid.New()
	seedWorkflow(t, pool, workflowID, tenantID)
	tc := tenantCtx(t, tenantID)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	expired := workflow.Bookmark{BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "a", Kind: workflow.BookmarkTimer, Active: true, ExpiresAt: &past, CreatedAt: time.Now()}
	notYet := workflow.Bookmark{BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "b", Kind: workflow.BookmarkTimer, Active: true, ExpiresAt: &future, CreatedAt: time.Now()}
	require.NoError(t, store.Create(context.Background(), tc, expired))
	require.NoError(t, store.Create(context.Background(), tc, notYet))

	out, err := store.ListExpired(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, expired.BookmarkID, out[0].BookmarkID)
}
