package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"callagent-platform/internal/auth"
	"callagent-platform/internal/rbac"
	"callagent-platform/internal/reporting"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Sessions sessions.Store
	Tasks    tasks.Store
	Reports  *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

func (h Handlers) GetSession(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	id := c.Param("session_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	sess, err := h.Sessions.GetByID(c.Request.Context(), workspaceID, id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) ListSessions(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	from, to, err := timeRangeParams(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := h.Sessions.List(c.Request.Context(), workspaceID, from, to, limitParam(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

// --- Tasks ---

func (h Handlers) ListTasks(c *gin.Context) {
	if h.Tasks == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tasks not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	rows, err := h.Tasks.List(c.Request.Context(), workspaceID, limitParam(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "task list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": rows})
}

type scheduleCallRequest struct {
	ContactID     string            `json:"contact_id"`
	ContactNumber string            `json:"contact_number"`
	ScheduledFor  *time.Time        `json:"scheduled_for,omitempty"`
	ScriptContext map[string]string `json:"script_context,omitempty"`
	MaxAttempts   int               `json:"max_attempts,omitempty"`
}

// ScheduleCall enqueues an initial reminder call for a contact. Scheduling
// twice while the first task is still active is a no-op, reported as
// created=false.
func (h Handlers) ScheduleCall(c *gin.Context) {
	if h.Tasks == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tasks not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	var req scheduleCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ContactID == "" || req.ContactNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contact_id, contact_number required"})
		return
	}

	now := time.Now().UTC()
	scheduledFor := now
	if req.ScheduledFor != nil {
		scheduledFor = req.ScheduledFor.UTC()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	task := tasks.CallTask{
		ID:            uuid.NewString(),
		WorkspaceID:   workspaceID,
		ContactID:     req.ContactID,
		ContactNumber: req.ContactNumber,
		Kind:          tasks.KindInitialReminder,
		Status:        tasks.StatusPending,
		ScheduledFor:  scheduledFor,
		MaxAttempts:   maxAttempts,
		ScriptContext: encodeScriptContext(req.ScriptContext),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := h.Tasks.CreateIfAbsent(c.Request.Context(), task)
	if err != nil {
		if errors.Is(err, tasks.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid task"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "task create failed"})
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"created": created, "task_id": task.ID})
}

// --- Reports ---

func (h Handlers) OutcomeSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	from, to, err := timeRangeParams(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := h.Reports.OutcomeSummary(c.Request.Context(), reporting.OutcomeSummaryRequest{
		WorkspaceID: workspaceID,
		Range:       reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) TaskSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	sum, err := h.Reports.TaskSummary(c.Request.Context(), reporting.TaskSummaryRequest{WorkspaceID: workspaceID})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Helpers ---

// timeRangeParams parses from/to query params (RFC3339); defaults to the
// trailing 24 hours.
func timeRangeParams(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

func limitParam(c *gin.Context) int {
	v := c.Query("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func encodeScriptContext(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// Convenience middleware bundles.

func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
