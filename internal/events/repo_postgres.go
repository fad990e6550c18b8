package events

import (
	"context"
	"database/sql"
)

// NOTE: This repository assumes the following table exists:
//
// provider_events (
//   id, provider_call_id, event_type, digest, payload, source, received_at
// )
// UNIQUE (provider_call_id, event_type, digest)

// PostgresStore persists provider events. Inserts are append-only; the
// unique constraint enforces the dedup invariant under concurrent writers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Record(ctx context.Context, e ProviderEvent) (bool, error) {
	if e.ID == "" || e.ProviderCallID == "" || e.Type == "" || e.Digest == "" {
		return false, ErrInvalidEvent
	}
	const q = `
INSERT INTO provider_events (id, provider_call_id, event_type, digest, payload, source, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (provider_call_id, event_type, digest) DO NOTHING
`
	res, err := p.db.ExecContext(ctx, q,
		e.ID, e.ProviderCallID, e.Type, e.Digest, e.Payload, e.Source, e.ReceivedAt,
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
