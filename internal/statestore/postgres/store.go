// Package postgres is the State Store's PostgreSQL-backed implementation,
// persisting the full instance document as JSONB with an optimistic
// version counter (workflow_state).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/statestore"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Store implements statestore.Store over workflow_state.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "statestore"))}
}

func (s *Store) Get(ctx context.Context, tc tenantctx.Context, id uuid.UUID) (*workflow.Instance, error) {
	var tenantID uuid.UUID
	var raw []byte
	var version int
	err := s.pool.QueryRow(ctx, `SELECT tenant_id, state, version FROM workflow_state WHERE id = $1`, id).
		Scan(&tenantID, &raw, &version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("statestore: get: %w", workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("statestore: get: %w", err)
	}
	if err := tc.CheckTenant(tenantID); err != nil {
		return nil, fmt.Errorf("statestore: get: %w", workflow.ErrNotFound)
	}

	var instance workflow.Instance
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("statestore: get: decode: %w", err)
	}
	instance.Version = version
	return &instance, nil
}

func (s *Store) Insert(ctx context.Context, tc tenantctx.Context, instance *workflow.Instance) error {
	if err := tc.CheckTenant(instance.TenantID); err != nil {
		return err
	}
	instance.Version = 1
	raw, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("statestore: insert: encode: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_state (id, tenant_id, template_id, state, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		instance.ID, instance.TenantID, instance.TemplateID, raw, instance.Version,
	)
	if err != nil {
		return fmt.Errorf("statestore: insert: %w", err)
	}
	return nil
}

func (s *Store) UpdateState(ctx context.Context, tc tenantctx.Context, state *workflow.Instance, expectedVersion int) error {
	if err := tc.CheckTenant(state.TenantID); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statestore: update_state: encode: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE workflow_state
		 SET state = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		raw, state.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("statestore: update_state: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return statestore.ErrStaleWrite
	}
	state.Version = expectedVersion + 1
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, tc tenantctx.Context, id uuid.UUID, status workflow.Status) error {
	instance, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}
	instance.Status = status
	return s.UpdateState(ctx, tc, instance, instance.Version)
}

func (s *Store) Find(ctx context.Context, tc tenantctx.Context, filter statestore.Filter) ([]*workflow.Instance, error) {
	query := `SELECT tenant_id, state, version FROM workflow_state WHERE 1=1`
	var args []any
	if !tc.Actor.IsCrossTenant() {
		args = append(args, tc.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("statestore: find: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Instance
	for rows.Next() {
		var tenantID uuid.UUID
		var raw []byte
		var version int
		if err := rows.Scan(&tenantID, &raw, &version); err != nil {
			return nil, fmt.Errorf("statestore: find: scan: %w", err)
		}
		var instance workflow.Instance
		if err := json.Unmarshal(raw, &instance); err != nil {
			return nil, fmt.Errorf("statestore: find: decode: %w", err)
		}
		instance.Version = version
		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}
		out = append(out, &instance)
	}
	return out, rows.Err()
}

var _ statestore.Store = (*Store)(nil)
