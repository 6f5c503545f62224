// Package postgres is the Bookmark Manager's PostgreSQL-backed
// implementation, grounded on the same incremental-query pattern as
// internal/indexstore/postgres. A workflow's tenant is looked up through
// workflow_index by workflow_id since bookmarks carries no tenant_id
// column of its own (the bookmarks table belongs entirely to a single
// workflow, which already owns tenant scoping).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/bookmark"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

const bookmarkColumns = "bookmark_id, workflow_id, step_id, kind, expected_payload_shape, active, consumed_at, expires_at, created_at"

// Store implements bookmark.Store over the bookmarks table.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "bookmark-store"))}
}

func (s *Store) workflowTenant(ctx context.Context, workflowID uuid.UUID) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := s.pool.QueryRow(ctx, "SELECT tenant_id FROM workflow_index WHERE id = $1", workflowID).Scan(&tenantID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, fmt.Errorf("bookmark: %w", workflow.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("bookmark: lookup workflow tenant: %w", err)
	}
	return tenantID, nil
}

func (s *Store) Create(ctx context.Context, tc tenantctx.Context, b workflow.Bookmark) error {
	tenantID, err := s.workflowTenant(ctx, b.WorkflowID)
	if err != nil {
		return err
	}
	if err := tc.CheckTenant(tenantID); err != nil {
		return err
	}

	shape := b.ExpectedPayloadShape
	if shape == nil {
		shape = []byte("{}")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO bookmarks (bookmark_id, workflow_id, step_id, kind, expected_payload_shape, active, expires_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.BookmarkID, b.WorkflowID, b.StepID, b.Kind, shape, b.Active, b.ExpiresAt, b.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("bookmark: create: %w", workflow.ErrConflictingWrite)
		}
		return fmt.Errorf("bookmark: create: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tc tenantctx.Context, bookmarkID uuid.UUID) (workflow.Bookmark, error) {
	b, err := scanBookmark(s.pool.QueryRow(ctx, "SELECT "+bookmarkColumns+" FROM bookmarks WHERE bookmark_id = $1", bookmarkID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return workflow.Bookmark{}, fmt.Errorf("bookmark: get: %w", bookmark.ErrNotFound)
		}
		return workflow.Bookmark{}, fmt.Errorf("bookmark: get: %w", err)
	}
	tenantID, err := s.workflowTenant(ctx, b.WorkflowID)
	if err != nil {
		return workflow.Bookmark{}, err
	}
	if err := tc.CheckTenant(tenantID); err != nil {
		return workflow.Bookmark{}, fmt.Errorf("bookmark: get: %w", bookmark.ErrNotFound)
	}
	return b, nil
}

func (s *Store) GetActiveForStep(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, stepID string) (workflow.Bookmark, error) {
	tenantID, err := s.workflowTenant(ctx, workflowID)
	if err != nil {
		return workflow.Bookmark{}, err
	}
	if err := tc.CheckTenant(tenantID); err != nil {
		return workflow.Bookmark{}, fmt.Errorf("bookmark: get_active_for_step: %w", bookmark.ErrNotFound)
	}
	b, err := scanBookmark(s.pool.QueryRow(ctx,
		"SELECT "+bookmarkColumns+" FROM bookmarks WHERE workflow_id = $1 AND step_id = $2 AND active",
		workflowID, stepID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return workflow.Bookmark{}, fmt.Errorf("bookmark: get_active_for_step: %w", bookmark.ErrNotFound)
		}
		return workflow.Bookmark{}, fmt.Errorf("bookmark: get_active_for_step: %w", err)
	}
	return b, nil
}

func (s *Store) Consume(ctx context.Context, tc tenantctx.Context, bookmarkID uuid.UUID) (workflow.Bookmark, error) {
	b, err := s.Get(ctx, tc, bookmarkID)
	if err != nil {
		return workflow.Bookmark{}, err
	}
	if !b.Active {
		if b.ConsumedAt != nil {
			return workflow.Bookmark{}, workflow.ErrBookmarkConsumed
		}
		return workflow.Bookmark{}, workflow.ErrBookmarkExpired
	}
	if b.ExpiresAt != nil && time.Now().After(*b.ExpiresAt) {
		_, _ = s.pool.Exec(ctx, "UPDATE bookmarks SET active = FALSE WHERE bookmark_id = $1", bookmarkID)
		return workflow.Bookmark{}, workflow.ErrBookmarkExpired
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE bookmarks SET active = FALSE, consumed_at = NOW() WHERE bookmark_id = $1 AND active",
		bookmarkID,
	)
	if err != nil {
		return workflow.Bookmark{}, fmt.Errorf("bookmark: consume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.Bookmark{}, workflow.ErrBookmarkConsumed
	}
	return s.Get(ctx, tc, bookmarkID)
}

func (s *Store) ListExpired(ctx context.Context) ([]workflow.Bookmark, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+bookmarkColumns+" FROM bookmarks WHERE active AND expires_at IS NOT NULL AND expires_at <= NOW()")
	if err != nil {
		return nil, fmt.Errorf("bookmark: list_expired: %w", err)
	}
	defer rows.Close()

	var out []workflow.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("bookmark: list_expired: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Expire(ctx context.Context, bookmarkID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "UPDATE bookmarks SET active = FALSE WHERE bookmark_id = $1", bookmarkID)
	if err != nil {
		return fmt.Errorf("bookmark: expire: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(rs rowScanner) (workflow.Bookmark, error) {
	var b workflow.Bookmark
	err := rs.Scan(&b.BookmarkID, &b.WorkflowID, &b.StepID, &b.Kind, &b.ExpectedPayloadShape, &b.Active, &b.ConsumedAt, &b.ExpiresAt, &b.CreatedAt)
	return b, err
}

var _ bookmark.Store = (*Store)(nil)
