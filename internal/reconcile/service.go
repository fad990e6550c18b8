package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callagent-platform/internal/events"
	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"

	"github.com/google/uuid"
)

// ErrUnknownCall means no session exists for the reported provider call id.
// The webhook path maps this to 404; the poller treats it as a bug.
var ErrUnknownCall = errors.New("reconcile: unknown provider call id")

// TransitionNotifier is invoked after every merge that changed the canonical
// outcome. Implementations must be idempotent: the same transition may be
// re-delivered on crash-retry.
type TransitionNotifier interface {
	OnOutcomeTransition(ctx context.Context, from outcome.Outcome, s sessions.CallSession) error
}

// Service runs the reconciliation pipeline shared by both delivery channels:
// record raw event -> extract outcome -> merge by precedence -> notify.
//
// The event store is the idempotency boundary: a duplicate event
// short-circuits before extraction, so each distinct event drives exactly
// one merge in exactly one caller.
type Service struct {
	sessions  sessions.Store
	events    events.Store
	notifiers []TransitionNotifier
	clock     func() time.Time
	log       *slog.Logger
}

func NewService(sessionStore sessions.Store, eventStore events.Store, notifiers ...TransitionNotifier) *Service {
	return &Service{
		sessions:  sessionStore,
		events:    eventStore,
		notifiers: notifiers,
		clock:     time.Now,
		log:       slog.Default(),
	}
}

// Result reports what one Process call did.
type Result struct {
	// EventAccepted is false when the event store saw identical content
	// before; the pipeline stopped there.
	EventAccepted bool
	// OutcomeChanged is true when the merge upgraded the canonical outcome.
	OutcomeChanged bool
	Session        sessions.CallSession
}

// Process routes one raw provider payload through the pipeline.
func (s *Service) Process(ctx context.Context, src outcome.Source, providerCallID string, eventType events.Type, payload []byte) (Result, error) {
	if providerCallID == "" {
		return Result{}, fmt.Errorf("reconcile: provider call id is required")
	}

	sess, err := s.sessions.GetByProviderCallID(ctx, providerCallID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return Result{}, ErrUnknownCall
		}
		return Result{}, err
	}

	now := s.clock().UTC()
	accepted, err := s.events.Record(ctx, events.ProviderEvent{
		ID:             uuid.NewString(),
		ProviderCallID: providerCallID,
		Type:           eventType,
		Digest:         events.Digest(payload),
		Payload:        string(payload),
		Source:         src,
		ReceivedAt:     now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: record event: %w", err)
	}
	if !accepted {
		// Already processed. Redelivery is still useful work: if a notifier
		// failed on the first pass the acknowledgement cursor trails the
		// outcome, and this is the retry path that closes the gap.
		sess = s.deliverPending(ctx, sess)
		return Result{EventAccepted: false, Session: sess}, nil
	}

	parsed, err := outcome.ParsePayload(payload)
	if err != nil {
		// The event is stored for audit, but an unparseable payload carries
		// no extractable information.
		s.log.Warn("provider payload not parseable", "provider_call_id", providerCallID, "err", err)
		return Result{EventAccepted: true, Session: sess}, nil
	}
	cand := outcome.Extract(parsed)
	ev := outcome.ExtractEvidence(parsed)

	var from outcome.Outcome
	var upgraded bool
	updated, err := s.sessions.Update(ctx, sess.ID, func(cur *sessions.CallSession) (bool, error) {
		from = cur.Outcome
		upgraded = applyMerge(cur, cand, ev, src, string(payload), now)
		return true, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: merge: %w", err)
	}

	if upgraded {
		s.log.Info("outcome upgraded",
			"session_id", updated.ID,
			"provider_call_id", providerCallID,
			"from", from, "to", updated.Outcome,
			"source", src,
		)
	}
	updated = s.deliverPending(ctx, updated)

	return Result{EventAccepted: true, OutcomeChanged: upgraded, Session: updated}, nil
}

// deliverPending pushes the session's outcome to the transition notifiers if
// it outranks what they last acknowledged, then advances the acknowledgement
// cursor. The merge is already committed, so a notifier failure does not
// unwind state; it withholds the acknowledgement, and any later delivery for
// this call (a provider webhook retry, the next poll) retries here. Notifiers
// must tolerate re-delivery of the same transition.
func (s *Service) deliverPending(ctx context.Context, sess sessions.CallSession) sessions.CallSession {
	if outcome.Rank(sess.Outcome) <= outcome.Rank(sess.NotifiedOutcome) {
		return sess
	}

	for _, n := range s.notifiers {
		if err := n.OnOutcomeTransition(ctx, sess.NotifiedOutcome, sess); err != nil {
			s.log.Error("transition notifier failed",
				"session_id", sess.ID, "outcome", sess.Outcome, "err", err)
			return sess
		}
	}

	acked, err := s.sessions.Update(ctx, sess.ID, func(cur *sessions.CallSession) (bool, error) {
		if outcome.Rank(sess.Outcome) <= outcome.Rank(cur.NotifiedOutcome) {
			return false, nil
		}
		cur.NotifiedOutcome = sess.Outcome
		return true, nil
	})
	if err != nil {
		// Worst case the notifiers see this transition again.
		s.log.Error("transition ack failed", "session_id", sess.ID, "err", err)
		return sess
	}
	return acked
}
