package reporting

import (
	"context"
	"errors"
	"time"

	"callagent-platform/internal/sessions"
	"callagent-platform/internal/tasks"
)

// maxReportRows bounds how much one summary request may scan.
const maxReportRows = 5000

// StoreRepo implements Repository on top of the session and task stores, so
// reporting reads the same rows reconciliation writes. Works with both the
// Postgres and in-memory store implementations.
type StoreRepo struct {
	Sessions sessions.Store
	Tasks    tasks.Store
}

func NewStoreRepo(sessionStore sessions.Store, taskStore tasks.Store) *StoreRepo {
	return &StoreRepo{Sessions: sessionStore, Tasks: taskStore}
}

func (r *StoreRepo) ListSessions(ctx context.Context, workspaceID string, from, to time.Time) ([]sessions.CallSession, error) {
	if r.Sessions == nil {
		return nil, errors.New("reporting: session store not configured")
	}
	return r.Sessions.List(ctx, workspaceID, from, to, maxReportRows)
}

func (r *StoreRepo) ListTasks(ctx context.Context, workspaceID string) ([]tasks.CallTask, error) {
	if r.Tasks == nil {
		return nil, errors.New("reporting: task store not configured")
	}
	return r.Tasks.List(ctx, workspaceID, maxReportRows)
}
