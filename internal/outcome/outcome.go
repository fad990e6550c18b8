package outcome

// Outcome is the canonical classification of how a call attempt concluded.
//
// Outcomes form a total order (see Rank). Conflicting reports from the two
// delivery channels are resolved by rank: a session's outcome may only ever
// move to a strictly higher-ranked value. Customer decisions (rescheduled,
// cancelled, confirmed) outrank everything a late signal from the other
// channel could carry; the inconclusive outcomes below them are ordered by
// how much information they carry, not by desirability.
type Outcome string

const (
	Unknown     Outcome = "unknown"
	Failed      Outcome = "failed"
	Answered    Outcome = "answered"
	Busy        Outcome = "busy"
	NoAnswer    Outcome = "no_answer"
	Voicemail   Outcome = "voicemail"
	Confirmed   Outcome = "confirmed"
	Cancelled   Outcome = "cancelled"
	Rescheduled Outcome = "rescheduled"
)

var ranks = map[Outcome]int{
	Unknown:     0,
	Failed:      1,
	Answered:    2,
	Busy:        3,
	NoAnswer:    4,
	Voicemail:   5,
	Confirmed:   6,
	Cancelled:   7,
	Rescheduled: 8,
}

// Rank returns the precedence of o. Unrecognized values rank as Unknown so a
// provider vocabulary change can never overwrite real information.
func Rank(o Outcome) int {
	return ranks[o]
}

// IsTerminal reports whether o represents a definite customer decision after
// which no further polling or merging is expected to change state.
func IsTerminal(o Outcome) bool {
	switch o {
	case Confirmed, Cancelled, Rescheduled:
		return true
	default:
		return false
	}
}

// NeedsFollowUp reports whether o means the contact was not reached and a
// retry call should be scheduled.
func NeedsFollowUp(o Outcome) bool {
	switch o {
	case NoAnswer, Voicemail, Busy, Failed:
		return true
	default:
		return false
	}
}

// Source identifies which delivery channel produced an outcome report.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
)
