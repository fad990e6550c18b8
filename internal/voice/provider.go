package voice

import (
	"context"
	"time"
)

// Provider is the narrow, provider-agnostic interface to the external
// voice-call service.
//
// Rules:
//   - No provider SDK calls outside voice adapters.
//   - Both operations may fail or time out; callers surface that as retry
//     conditions (task attempts, poll backoff), never as crashes or negative
//     call outcomes.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall asks the provider to start an outbound call. The returned
	// provider call id keys all later webhook/poll reconciliation.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// GetCallStatus returns the provider's current raw status payload for a
	// call. The payload shape is provider-defined and passed opaquely to the
	// outcome extractor.
	GetCallStatus(ctx context.Context, providerCallID string) ([]byte, error)
}

// PlaceCallRequest carries everything the provider needs to start a call.
type PlaceCallRequest struct {
	WorkspaceID string `json:"workspace_id"`
	ContactID   string `json:"contact_id"`

	// ContactNumber is E.164 where possible.
	ContactNumber string `json:"contact_number"`

	// ScriptContext is opaque key/value context for the call script
	// (appointment time, patient name, ...). The provider interpolates it;
	// this service does not inspect it.
	ScriptContext map[string]string `json:"script_context,omitempty"`
}

type PlaceCallResult struct {
	ProviderCallID string    `json:"provider_call_id"`
	AcceptedAt     time.Time `json:"accepted_at"`
}
