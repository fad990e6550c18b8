package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following table exists:
//
// call_tasks (
//   id, workspace_id, contact_id, contact_number, kind, status,
//   scheduled_for, attempts, max_attempts, last_attempt_at, last_error,
//   script_context, created_at, updated_at
// )
// UNIQUE INDEX call_tasks_active_dedup
//   ON call_tasks (workspace_id, contact_id, kind)
//   WHERE status IN ('pending', 'processing')
// INDEX on (status, scheduled_for)

const taskColumns = `
id, workspace_id, contact_id, contact_number, kind, status,
scheduled_for, attempts, max_attempts, last_attempt_at, last_error,
script_context, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateIfAbsent(ctx context.Context, t CallTask) (bool, error) {
	if t.ID == "" || t.WorkspaceID == "" || t.ContactID == "" || t.Kind == "" {
		return false, ErrInvalidArgument
	}
	const q = `
INSERT INTO call_tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (workspace_id, contact_id, kind) WHERE status IN ('pending', 'processing')
DO NOTHING
`
	res, err := p.db.ExecContext(ctx, q,
		t.ID, t.WorkspaceID, t.ContactID, t.ContactNumber, t.Kind, t.Status,
		t.ScheduledFor, t.Attempts, t.MaxAttempts, t.LastAttemptAt, t.LastError,
		t.ScriptContext, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]CallTask, error) {
	if limit <= 0 {
		limit = 10
	}
	// SKIP LOCKED lets multiple executor processes claim disjoint batches.
	const q = `
UPDATE call_tasks SET
  status = 'processing',
  attempts = attempts + 1,
  last_attempt_at = $1,
  updated_at = $1
WHERE id IN (
  SELECT id FROM call_tasks
  WHERE status = 'pending' AND scheduled_for <= $1
  ORDER BY scheduled_for ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskColumns
	rows, err := p.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (p *PostgresStore) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	return p.transition(ctx, id, StatusProcessing, StatusCompleted, now, "", false)
}

func (p *PostgresStore) MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error {
	return p.transition(ctx, id, StatusProcessing, StatusFailed, now, lastError, false)
}

func (p *PostgresStore) Release(ctx context.Context, id string, now time.Time, lastError string, refundAttempt bool) error {
	return p.transition(ctx, id, StatusProcessing, StatusPending, now, lastError, refundAttempt)
}

func (p *PostgresStore) transition(ctx context.Context, id string, from, to Status, now time.Time, lastError string, refundAttempt bool) error {
	if id == "" {
		return ErrInvalidArgument
	}
	refund := 0
	if refundAttempt {
		refund = 1
	}
	const q = `
UPDATE call_tasks SET
  status = $3,
  attempts = attempts - $4,
  last_error = CASE WHEN $5 <> '' THEN $5 ELSE last_error END,
  updated_at = $6
WHERE id = $1 AND status = $2
`
	res, err := p.db.ExecContext(ctx, q, id, from, to, refund, lastError, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CancelPending(ctx context.Context, workspaceID, contactID string, kind Kind) (bool, error) {
	if workspaceID == "" || contactID == "" || kind == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE call_tasks SET status = 'cancelled', updated_at = now()
WHERE workspace_id = $1 AND contact_id = $2 AND kind = $3 AND status = 'pending'
`
	res, err := p.db.ExecContext(ctx, q, workspaceID, contactID, kind)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresStore) GetByID(ctx context.Context, workspaceID, id string) (CallTask, error) {
	if workspaceID == "" || id == "" {
		return CallTask{}, ErrInvalidArgument
	}
	const q = `SELECT ` + taskColumns + ` FROM call_tasks WHERE workspace_id = $1 AND id = $2`
	return scanTask(p.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (p *PostgresStore) List(ctx context.Context, workspaceID string, limit int) ([]CallTask, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + taskColumns + ` FROM call_tasks
WHERE workspace_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := p.db.QueryContext(ctx, q, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (CallTask, error) {
	var t CallTask
	err := r.Scan(
		&t.ID, &t.WorkspaceID, &t.ContactID, &t.ContactNumber, &t.Kind, &t.Status,
		&t.ScheduledFor, &t.Attempts, &t.MaxAttempts, &t.LastAttemptAt, &t.LastError,
		&t.ScriptContext, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallTask{}, ErrNotFound
		}
		return CallTask{}, err
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]CallTask, error) {
	out := make([]CallTask, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
