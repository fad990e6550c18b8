package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callagent-platform/pkg/utils"
)

// NOTE: This repository assumes the following table exists:
//
// call_sessions (
//   id, workspace_id, contact_id, contact_number, provider_call_id,
//   status, outcome,
//   started_at, ended_at, duration_seconds,
//   last_webhook_payload, last_poll_payload, transcript,
//   poll_attempts, next_poll_at, webhook_verified, source_of_truth,
//   notified_outcome, dead_lettered_at, created_at, updated_at
// )
// UNIQUE (provider_call_id) WHERE provider_call_id <> ''
// INDEX on (next_poll_at) WHERE next_poll_at IS NOT NULL

const sessionColumns = `
id, workspace_id, contact_id, contact_number, provider_call_id, status, outcome,
started_at, ended_at, duration_seconds,
last_webhook_payload, last_poll_payload, transcript,
poll_attempts, next_poll_at, webhook_verified, source_of_truth,
notified_outcome, dead_lettered_at, created_at, updated_at`

// PostgresStore persists sessions with database/sql over the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, s CallSession) error {
	if s.ID == "" || s.WorkspaceID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`
	_, err := p.db.ExecContext(ctx, q,
		s.ID, s.WorkspaceID, s.ContactID, s.ContactNumber, s.ProviderCallID, s.Status, s.Outcome,
		s.StartedAt, s.EndedAt, s.DurationSeconds,
		s.LastWebhookPayload, s.LastPollPayload, s.Transcript,
		s.PollAttempts, s.NextPollAt, s.WebhookVerified, s.SourceOfTruth,
		s.NotifiedOutcome, s.DeadLetteredAt, s.CreatedAt, s.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicateProviderCall
	}
	return err
}

func (p *PostgresStore) GetByID(ctx context.Context, workspaceID, id string) (CallSession, error) {
	if workspaceID == "" || id == "" {
		return CallSession{}, ErrInvalidArgument
	}
	const q = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE workspace_id = $1 AND id = $2`
	return scanSession(p.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (p *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (CallSession, error) {
	if providerCallID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	const q = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE provider_call_id = $1`
	return scanSession(p.db.QueryRowContext(ctx, q, providerCallID))
}

func (p *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (CallSession, error) {
	if id == "" {
		return CallSession{}, ErrInvalidArgument
	}
	var out CallSession
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so concurrent webhook/poll merges serialize and each
		// fn sees the latest committed state.
		const lockQ = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1 FOR UPDATE`
		s, err := scanSession(tx.QueryRowContext(ctx, lockQ, id))
		if err != nil {
			return err
		}

		changed, err := fn(&s)
		if err != nil {
			return err
		}
		if !changed {
			out = s
			return nil
		}

		const updQ = `
UPDATE call_sessions SET
  status = $2, outcome = $3,
  started_at = $4, ended_at = $5, duration_seconds = $6,
  last_webhook_payload = $7, last_poll_payload = $8, transcript = $9,
  poll_attempts = $10, next_poll_at = $11, webhook_verified = $12, source_of_truth = $13,
  notified_outcome = $14, dead_lettered_at = $15, updated_at = $16
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, updQ,
			s.ID, s.Status, s.Outcome,
			s.StartedAt, s.EndedAt, s.DurationSeconds,
			s.LastWebhookPayload, s.LastPollPayload, s.Transcript,
			s.PollAttempts, s.NextPollAt, s.WebhookVerified, s.SourceOfTruth,
			s.NotifiedOutcome, s.DeadLetteredAt, s.UpdatedAt,
		); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return CallSession{}, err
	}
	return out, nil
}

func (p *PostgresStore) ListDuePolls(ctx context.Context, now time.Time, limit int) ([]CallSession, error) {
	if limit <= 0 {
		limit = 50
	}
	// A session that ended without a recognized outcome stays in the scan:
	// later polls may carry the post-call analysis, and if none ever does the
	// dead-letter ceiling flags it instead of stranding it outcome-less.
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE next_poll_at IS NOT NULL AND next_poll_at <= $1
  AND (status IN ('queued', 'ongoing') OR outcome = 'unknown')
ORDER BY next_poll_at ASC
LIMIT $2
`
	rows, err := p.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (p *PostgresStore) List(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]CallSession, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE workspace_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
LIMIT $4
`
	rows, err := p.db.QueryContext(ctx, q, workspaceID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (CallSession, error) {
	var s CallSession
	err := r.Scan(
		&s.ID, &s.WorkspaceID, &s.ContactID, &s.ContactNumber, &s.ProviderCallID, &s.Status, &s.Outcome,
		&s.StartedAt, &s.EndedAt, &s.DurationSeconds,
		&s.LastWebhookPayload, &s.LastPollPayload, &s.Transcript,
		&s.PollAttempts, &s.NextPollAt, &s.WebhookVerified, &s.SourceOfTruth,
		&s.NotifiedOutcome, &s.DeadLetteredAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	return s, nil
}

func scanSessions(rows *sql.Rows) ([]CallSession, error) {
	out := make([]CallSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
