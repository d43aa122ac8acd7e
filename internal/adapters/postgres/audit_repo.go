package postgres

// Package postgres persists the login audit trail. Oversight installations
// are required to keep a record of who accessed case data and when; the
// gateway writes one row per login, logout, and forced logout.

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
)

// AuditRepo stores audit events in Postgres.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo constructs an AuditRepo.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// EnsureSchema creates the audit table when it does not exist yet. The
// gateway owns this single table, so a full migration runner is not needed.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS login_audit (
			id          BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			action      TEXT NOT NULL,
			external_id TEXT NOT NULL,
			strategy    TEXT NOT NULL DEFAULT '',
			remote_addr TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS login_audit_external_id_idx
			ON login_audit (external_id, occurred_at DESC);`
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure login_audit schema: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Record inserts one audit event.
func (r *AuditRepo) Record(ctx context.Context, event domainauth.AuditEvent) error {
	if event.ExternalID == "" {
		return apperrors.Validation("audit: external id is required")
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	const query = `
		INSERT INTO login_audit (occurred_at, action, external_id, strategy, remote_addr)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query,
		event.Time, string(event.Action), event.ExternalID, event.Strategy, event.RemoteAddr)
	if err != nil {
		return fmt.Errorf("insert login_audit: %w", apperrors.MapDBError(err))
	}
	return nil
}

