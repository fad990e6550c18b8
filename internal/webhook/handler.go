package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"callagent-platform/internal/events"
	"callagent-platform/internal/outcome"
	"callagent-platform/internal/reconcile"
	"callagent-platform/internal/sessions"
	"callagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Callagent-Signature"

// envelope is the provider's webhook wrapper. The call object inside is the
// same status payload shape the poll endpoint returns; transport metadata
// (retry_count, delivered_at, ...) lives at this level and never reaches the
// event digest.
type envelope struct {
	Event string          `json:"event"`
	Call  json.RawMessage `json:"call"`
}

var eventTypes = map[string]events.Type{
	"call.started":  events.TypeStarted,
	"call.ended":    events.TypeEnded,
	"call.analyzed": events.TypeAnalyzed,
}

// SecretResolver returns the webhook signing secret for a workspace. Keeping
// it injected avoids persistence assumptions here; workspace management is an
// external collaborator.
type SecretResolver func(ctx context.Context, workspaceID string) (string, error)

// Handler ingests provider push notifications.
//
// Contract:
//   - 200 once the event is durably stored (even if it did not upgrade the
//     session; redelivery must be cheap and safe)
//   - 401 on signature mismatch
//   - 404 when the provider call id is not ours (never guess a tenant)
type Handler struct {
	Sessions   sessions.Store
	Reconciler *reconcile.Service
	Secrets    SecretResolver
}

func (h Handler) HandleProviderEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Sessions == nil || h.Reconciler == nil || h.Secrets == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook handler not configured"})
		return
	}

	// The raw bytes feed the signature check; do not re-serialize.
	raw, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn("webhook body not parseable", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	eventType, ok := eventTypes[env.Event]
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		return
	}

	payload, err := outcome.ParsePayload(env.Call)
	if err != nil || payload.CallID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing call_id"})
		return
	}

	// The tenant's secret is resolved via the session owning this provider
	// call id. An unknown id is 404, logged for investigation.
	sess, err := h.Sessions.GetByProviderCallID(c.Request.Context(), payload.CallID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			log.Warn("webhook for unknown provider call id", "provider_call_id", payload.CallID)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	secret, err := h.Secrets(c.Request.Context(), sess.WorkspaceID)
	if err != nil {
		log.Error("webhook secret resolution failed", "workspace_id", sess.WorkspaceID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "secret resolution failed"})
		return
	}
	if err := VerifySignature(secret, c.GetHeader(signatureHeader), raw); err != nil {
		log.Warn("webhook signature rejected", "provider_call_id", payload.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	res, err := h.Reconciler.Process(c.Request.Context(), outcome.SourceWebhook, payload.CallID, eventType, env.Call)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownCall) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
			return
		}
		log.Error("webhook reconciliation failed", "provider_call_id", payload.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "accepted",
		"duplicate": !res.EventAccepted,
	})
}
