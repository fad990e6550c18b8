package outcome

import (
	"encoding/json"
	"time"
)

// StatusPayload is the loosely-typed envelope the voice provider reports for
// one call, delivered either inside a webhook or as a poll response body.
//
// All fields are optional. Absence of a field means "not known yet" and must
// never be read as a negative result; the extractor maps missing data to
// Unknown.
type StatusPayload struct {
	CallID string `json:"call_id"`

	// Status is the provider's call lifecycle state:
	// queued | ringing | in_progress | ended
	Status string `json:"status,omitempty"`

	// EndedReason is set once Status == "ended".
	EndedReason string `json:"ended_reason,omitempty"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`

	Transcript string `json:"transcript,omitempty"`

	// Analysis is present only after the provider's post-call analysis ran.
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Analysis is the provider's post-call structured evaluation.
type Analysis struct {
	// AppointmentAction is the customer decision detected on the call:
	// confirmed | cancelled | rescheduled
	AppointmentAction string `json:"appointment_action,omitempty"`
}

// ParsePayload decodes a raw provider payload. Unknown fields are ignored;
// the provider owns the envelope shape and adds fields without notice.
func ParsePayload(raw []byte) (StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return StatusPayload{}, err
	}
	return p, nil
}

// Extract maps a provider payload into the canonical outcome vocabulary.
//
// Pure function, no I/O. Missing or unrecognized fields yield Unknown;
// absence of information is never a negative outcome.
func Extract(p StatusPayload) Outcome {
	if p.Analysis != nil {
		switch p.Analysis.AppointmentAction {
		case "confirmed":
			return Confirmed
		case "cancelled":
			return Cancelled
		case "rescheduled":
			return Rescheduled
		}
	}

	if p.Status != "ended" {
		// Call still in flight (or not started); no outcome yet.
		return Unknown
	}

	switch p.EndedReason {
	case "voicemail":
		return Voicemail
	case "customer_did_not_answer":
		return NoAnswer
	case "customer_busy":
		return Busy
	case "customer_ended_call", "assistant_ended_call":
		// Reached a human but no decision was captured by analysis (yet).
		return Answered
	case "assistant_error", "provider_fault":
		return Failed
	default:
		return Unknown
	}
}

// Evidence carries the merge-relevant facts extracted alongside the outcome.
type Evidence struct {
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int
	Transcript      string
	Ended           bool
	Started         bool
}

// ExtractEvidence pulls timing and transcript facts out of a payload.
func ExtractEvidence(p StatusPayload) Evidence {
	return Evidence{
		StartedAt:       p.StartedAt,
		EndedAt:         p.EndedAt,
		DurationSeconds: p.DurationSeconds,
		Transcript:      p.Transcript,
		Ended:           p.Status == "ended",
		Started:         p.Status == "in_progress" || p.Status == "ringing" || p.Status == "ended",
	}
}
