package audit

import (
	"context"
	"testing"

	"callagent-platform/internal/outcome"
)

func TestService_AppendRequiresWorkspaceAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeDeadLetter}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{WorkspaceID: "w"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_LogOutcomeTransition(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogOutcomeTransition(context.Background(), "w", "sess1", "contact1", "vc_1", outcome.Voicemail, outcome.Confirmed, outcome.SourceWebhook)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.Type != EventTypeOutcomeTransition {
		t.Fatalf("expected outcome_transition")
	}
	if e.OldOutcome != outcome.Voicemail || e.NewOutcome != outcome.Confirmed || e.Source != outcome.SourceWebhook {
		t.Fatalf("transition facts not captured: %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be filled")
	}
}

func TestService_LogDeadLetter(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogDeadLetter(context.Background(), "w", "sess1", "contact1", "vc_1", 7); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.ByType(EventTypeDeadLetter)
	if len(evs) != 1 {
		t.Fatalf("expected 1 dead_letter event")
	}
	if evs[0].Metadata != `{"poll_attempts":7}` {
		t.Fatalf("unexpected metadata: %s", evs[0].Metadata)
	}
}
