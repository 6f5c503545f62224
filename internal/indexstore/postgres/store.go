// Package postgres is the Index Store's PostgreSQL-backed implementation.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/indexstore"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

const indexColumns = "id, tenant_id, template_id, template_version, market_role, status, current_step_id, created_by, created_at, updated_at, projected_sequence_no"

// Store implements indexstore.Store over workflow_index.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "indexstore"))}
}

func (s *Store) Insert(ctx context.Context, tc tenantctx.Context, row workflow.IndexRow) error {
	if err := tc.CheckTenant(row.TenantID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_index
			(id, tenant_id, template_id, template_version, market_role, status, current_step_id, created_by, created_at, updated_at, projected_sequence_no)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		row.ID, row.TenantID, row.TemplateID, row.TemplateVersion, row.MarketRole, row.Status,
		row.CurrentStepID, row.CreatedBy, row.CreatedAt, row.UpdatedAt, row.ProjectedSequenceNo,
	)
	if err != nil {
		return fmt.Errorf("indexstore: insert: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, tc tenantctx.Context, id uuid.UUID, status workflow.Status, currentStepID string, projectedSequenceNo int64) error {
	row, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE workflow_index
		 SET status = $1, current_step_id = $2, updated_at = NOW(), projected_sequence_no = $3
		 WHERE id = $4 AND tenant_id = $5`,
		status, currentStepID, projectedSequenceNo, id, row.TenantID,
	)
	if err != nil {
		return fmt.Errorf("indexstore: update_status: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tc tenantctx.Context, id uuid.UUID) (workflow.IndexRow, error) {
	row, err := scanRow(s.pool.QueryRow(ctx, "SELECT "+indexColumns+" FROM workflow_index WHERE id = $1", id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return workflow.IndexRow{}, fmt.Errorf("indexstore: get: %w", workflow.ErrNotFound)
		}
		return workflow.IndexRow{}, fmt.Errorf("indexstore: get: %w", err)
	}
	if err := tc.CheckTenant(row.TenantID); err != nil {
		// never reveal existence to a caller outside the tenant.
		return workflow.IndexRow{}, fmt.Errorf("indexstore: get: %w", workflow.ErrNotFound)
	}
	return row, nil
}

func (s *Store) Query(ctx context.Context, tc tenantctx.Context, filter indexstore.Filter, page indexstore.Page) ([]workflow.IndexRow, error) {
	query, args := s.buildQuery("SELECT "+indexColumns+" FROM workflow_index", tc, filter)
	if page.Limit <= 0 {
		page.Limit = 50
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("indexstore: query: %w", err)
	}
	defer rows.Close()

	var out []workflow.IndexRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("indexstore: query: scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, tc tenantctx.Context, filter indexstore.Filter) (int, error) {
	query, args := s.buildQuery("SELECT COUNT(*) FROM workflow_index", tc, filter)
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("indexstore: count: %w", err)
	}
	return count, nil
}

func (s *Store) Delete(ctx context.Context, tc tenantctx.Context, id uuid.UUID) error {
	row, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, "DELETE FROM workflow_index WHERE id = $1 AND tenant_id = $2", id, row.TenantID)
	if err != nil {
		return fmt.Errorf("indexstore: delete: %w", err)
	}
	return nil
}

// buildQuery applies the tenant scope (exactly one tenant for tenant-bound
// actors, unrestricted for market_ops) and the caller's filter by
// incrementally building up the WHERE clause and its argument list.
func (s *Store) buildQuery(base string, tc tenantctx.Context, filter indexstore.Filter) (string, []any) {
	query := base + " WHERE 1=1"
	var args []any

	if !tc.Actor.IsCrossTenant() {
		args = append(args, tc.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.MarketRole != "" {
		args = append(args, filter.MarketRole)
		query += fmt.Sprintf(" AND market_role = $%d", len(args))
	}
	if filter.TemplateID != uuid.Nil {
		args = append(args, filter.TemplateID)
		query += fmt.Sprintf(" AND template_id = $%d", len(args))
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(rs rowScanner) (workflow.IndexRow, error) {
	var row workflow.IndexRow
	err := rs.Scan(&row.ID, &row.TenantID, &row.TemplateID, &row.TemplateVersion, &row.MarketRole,
		&row.Status, &row.CurrentStepID, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt, &row.ProjectedSequenceNo)
	return row, err
}

var _ indexstore.Store = (*Store)(nil)
