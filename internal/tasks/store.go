package tasks

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("tasks: not found")
	ErrInvalidArgument = errors.New("tasks: invalid argument")
)

// Store is the persistence contract for call tasks.
type Store interface {
	// CreateIfAbsent inserts t unless an active (pending/processing) task
	// with the same (workspace_id, contact_id, kind) already exists.
	// Returns whether a row was inserted. The check-then-insert runs as one
	// conditional insert against the uniqueness constraint, never as an
	// application-level read followed by a write.
	CreateIfAbsent(ctx context.Context, t CallTask) (created bool, err error)

	// ClaimDue atomically moves up to limit due pending tasks to processing,
	// bumping their attempt counter. Only one worker can win a given task.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]CallTask, error)

	MarkCompleted(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error

	// Release returns a processing task to pending for a later scan.
	// refundAttempt undoes the claim's attempt bump, for deferrals that
	// should not consume the attempt budget (e.g. a capacity cap).
	Release(ctx context.Context, id string, now time.Time, lastError string, refundAttempt bool) error

	// CancelPending cancels a still-pending task of the given kind for a
	// contact. Returns whether a task was cancelled. Processing tasks are
	// left alone; their placement is already in flight.
	CancelPending(ctx context.Context, workspaceID, contactID string, kind Kind) (bool, error)

	GetByID(ctx context.Context, workspaceID, id string) (CallTask, error)
	List(ctx context.Context, workspaceID string, limit int) ([]CallTask, error)
}
