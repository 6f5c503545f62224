// Package postgres implements tenant.Repository and tenant.ActorRepository
// against PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/tenant"
)

// Repository implements tenant.Repository and tenant.ActorRepository for PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL repository.
// Accepts interface{} to satisfy the database.Provider abstraction, type
// asserts to *pgxpool.Pool.
func New(pool interface{}, logger *zap.Logger) (*Repository, error) {
	pgPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("expected *pgxpool.Pool, got %T", pool)
	}
	return &Repository{
		pool:   pgPool,
		logger: logger.With(zap.String("component", "tenant-postgres-repository")),
	}, nil
}

const createTenantQuery = `
INSERT INTO tenants (id, name, status, labels)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at, version
`

func (r *Repository) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	r.logger.Debug("creating tenant",
		zap.String("name", t.Name),
		zap.String("id", t.ID.String()),
		zap.String("status", string(t.Status)))

	row := r.pool.QueryRow(ctx, createTenantQuery,
		t.ID, t.Name, t.Status, jsonbOrEmptyStringMap(t.Labels),
	)

	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt, &t.Version); err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrTenantExists
		}
		return fmt.Errorf("create tenant: %w", err)
	}

	r.logger.Info("tenant created", zap.String("id", t.ID.String()), zap.String("name", t.Name))
	return nil
}

const tenantColumns = `id, name, status, created_at, updated_at, version, labels`

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	t := &tenant.Tenant{}
	var labelsJSON []byte

	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.Version, &labelsJSON)
	if err != nil {
		return nil, err
	}
	if err := unmarshalStringMap(labelsJSON, &t.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	return t, nil
}

func (r *Repository) GetTenantByName(ctx context.Context, name string) (*tenant.Tenant, error) {
	r.logger.Debug("getting tenant", zap.String("name", name))

	t, err := scanTenant(r.pool.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE name = $1", name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (r *Repository) GetTenantByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.logger.Debug("getting tenant by ID", zap.String("id", id.String()))

	t, err := scanTenant(r.pool.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by ID: %w", err)
	}
	return t, nil
}

const updateTenantQuery = `
UPDATE tenants SET
    name = $2,
    status = $3,
    labels = $4,
    updated_at = NOW(),
    version = version + 1
WHERE id = $1 AND version = $5
RETURNING version, updated_at
`

func (r *Repository) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	r.logger.Debug("updating tenant", zap.String("id", t.ID.String()), zap.Int("version", t.Version))

	row := r.pool.QueryRow(ctx, updateTenantQuery,
		t.ID, t.Name, t.Status, jsonbOrEmptyStringMap(t.Labels), t.Version,
	)

	if err := row.Scan(&t.Version, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrTenantExists
		}
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetTenantByID(ctx, t.ID); getErr != nil {
				return tenant.ErrTenantNotFound
			}
			return tenant.ErrVersionConflict
		}
		return fmt.Errorf("update tenant: %w", err)
	}

	r.logger.Info("tenant updated", zap.String("id", t.ID.String()), zap.Int("new_version", t.Version))
	return nil
}

func (r *Repository) ListTenants(ctx context.Context, filters tenant.ListFilters) ([]*tenant.Tenant, error) {
	query, args := r.buildListQuery(filters)

	r.logger.Debug("listing tenants", zap.Any("filters", filters))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}

	return tenants, nil
}

func (r *Repository) buildListQuery(filters tenant.ListFilters) (string, []interface{}) {
	query := "SELECT " + tenantColumns + " FROM tenants WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if len(filters.Statuses) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		statusStrings := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statusStrings[i] = string(s)
		}
		args = append(args, statusStrings)
		argPos++
	}

	if filters.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at > $%d", argPos)
		args = append(args, *filters.CreatedAfter)
		argPos++
	}
	if filters.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *filters.CreatedBefore)
		argPos++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	return query, args
}

func (r *Repository) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	r.logger.Debug("deleting tenant", zap.String("id", id.String()))

	var deletedID uuid.UUID
	err := r.pool.QueryRow(ctx, "DELETE FROM tenants WHERE id = $1 RETURNING id", id).Scan(&deletedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenant.ErrTenantNotFound
		}
		return fmt.Errorf("delete tenant: %w", err)
	}

	r.logger.Info("tenant deleted", zap.String("id", id.String()))
	return nil
}

const recordTransitionQuery = `
INSERT INTO tenant_state_history (tenant_id, from_status, to_status, reason, triggered_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at
`

func (r *Repository) RecordStateTransition(ctx context.Context, st *tenant.StateTransition) error {
	r.logger.Debug("recording state transition",
		zap.String("tenant_id", st.TenantID.String()),
		zap.String("to_status", string(st.ToStatus)))

	row := r.pool.QueryRow(ctx, recordTransitionQuery, st.TenantID, st.FromStatus, st.ToStatus, st.Reason, st.TriggeredBy)

	if err := row.Scan(&st.ID, &st.CreatedAt); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

const getHistoryQuery = `
SELECT id, tenant_id, from_status, to_status, reason, triggered_by, created_at
FROM tenant_state_history
WHERE tenant_id = $1
ORDER BY created_at DESC
`

func (r *Repository) GetStateHistory(ctx context.Context, tenantID uuid.UUID) ([]*tenant.StateTransition, error) {
	r.logger.Debug("getting state history", zap.String("tenant_id", tenantID.String()))

	rows, err := r.pool.Query(ctx, getHistoryQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var history []*tenant.StateTransition
	for rows.Next() {
		st := &tenant.StateTransition{}
		if err := rows.Scan(&st.ID, &st.TenantID, &st.FromStatus, &st.ToStatus, &st.Reason, &st.TriggeredBy, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		history = append(history, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return history, nil
}

const createActorQuery = `
INSERT INTO actors (id, role, tenant_id)
VALUES ($1, $2, $3)
`

func (r *Repository) CreateActor(ctx context.Context, a *tenant.Actor) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("create actor: %w", err)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, createActorQuery, a.ID, a.Role, a.TenantID)
	if err != nil {
		return fmt.Errorf("create actor: %w", err)
	}
	return nil
}

func (r *Repository) GetActor(ctx context.Context, id uuid.UUID) (*tenant.Actor, error) {
	a := &tenant.Actor{}
	err := r.pool.QueryRow(ctx, "SELECT id, role, tenant_id FROM actors WHERE id = $1", id).
		Scan(&a.ID, &a.Role, &a.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrActorNotFound
		}
		return nil, fmt.Errorf("get actor: %w", err)
	}
	return a, nil
}

func (r *Repository) ListActorsForTenant(ctx context.Context, tenantID uuid.UUID) ([]*tenant.Actor, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, role, tenant_id FROM actors WHERE tenant_id = $1", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	var actors []*tenant.Actor
	for rows.Next() {
		a := &tenant.Actor{}
		if err := rows.Scan(&a.ID, &a.Role, &a.TenantID); err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actors: %w", err)
	}
	return actors, nil
}

func jsonbOrEmptyStringMap(m map[string]string) interface{} {
	if len(m) == 0 {
		return "{}"
	}
	return m
}

func unmarshalStringMap(data []byte, m *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, m)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
