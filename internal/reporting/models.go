package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// OutcomeSummaryRequest requests aggregated session outcome metrics.
// Workspace isolation: WorkspaceID is required.

type OutcomeSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type OutcomeSummary struct {
	WorkspaceID string `json:"workspace_id"`

	TotalSessions int `json:"total_sessions"`

	// ByOutcome counts sessions per merged outcome value.
	ByOutcome map[string]int `json:"by_outcome"`

	TerminalSessions     int `json:"terminal_sessions"`
	FollowUpEligible     int `json:"follow_up_eligible"`
	DeadLetteredSessions int `json:"dead_lettered_sessions"`

	// Channel split: which side of the reconciliation won the final outcome.
	WebhookResolved int `json:"webhook_resolved"`
	PollResolved    int `json:"poll_resolved"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

// TaskSummaryRequest requests aggregated call task metrics.

type TaskSummaryRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

type TaskSummary struct {
	WorkspaceID string `json:"workspace_id"`

	TotalTasks      int `json:"total_tasks"`
	PendingTasks    int `json:"pending_tasks"`
	ProcessingTasks int `json:"processing_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	FailedTasks     int `json:"failed_tasks"`
	CancelledTasks  int `json:"cancelled_tasks"`

	FollowUpTasks int `json:"follow_up_tasks"`
}
