package poller

import "time"

// Schedule is the poll backoff policy.
//
// Initial is the deliberate delay between call placement and the first poll:
// polling immediately almost always observes an in-flight call with no
// outcome data. Steps apply after each poll that yielded no terminal or
// verified result; past the last step every further poll waits Max.
type Schedule struct {
	Initial time.Duration
	Steps   []time.Duration
	Max     time.Duration
}

// DefaultSchedule matches the tuning the provider's delivery characteristics
// were measured against. All values are overridable via config.
func DefaultSchedule() Schedule {
	return Schedule{
		Initial: 45 * time.Second,
		Steps: []time.Duration{
			45 * time.Second,
			90 * time.Second,
			3 * time.Minute,
			5 * time.Minute,
		},
		Max: 10 * time.Minute,
	}
}

// Delay returns how long to wait before the next poll, given how many polls
// already ran. attempts == 0 means the call was just placed.
func (s Schedule) Delay(attempts int) time.Duration {
	if attempts <= 0 {
		return s.Initial
	}
	idx := attempts - 1
	if idx >= len(s.Steps) {
		return s.Max
	}
	d := s.Steps[idx]
	if s.Max > 0 && d > s.Max {
		return s.Max
	}
	return d
}
