package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events to an append-only audit_events table.
// No Update/Delete is ever issued against it (see Repository's contract).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events
		 (id, type, actor_user_id, actor_role, ip_address, group_id, account_id, currency, message, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress, e.GroupID, e.AccountID, e.Currency, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

var _ Repository = (*PostgresRepo)(nil)
