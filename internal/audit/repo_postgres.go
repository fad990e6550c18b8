package audit

import (
	"context"
	"database/sql"
)

// NOTE: This repository assumes the following table exists:
//
// audit_events (
//   id, workspace_id, type, session_id, task_id, contact_id, provider_call_id,
//   old_outcome, new_outcome, source, message, metadata, created_at
// )
// INSERT-only; no UPDATE/DELETE issued by this code.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, workspace_id, type, session_id, task_id, contact_id, provider_call_id,
  old_outcome, new_outcome, source, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.WorkspaceID, e.Type, e.SessionID, e.TaskID, e.ContactID, e.ProviderCallID,
		e.OldOutcome, e.NewOutcome, e.Source, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
