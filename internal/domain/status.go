package domain

import "time"

// ResolveStatus computes the effective status of an event as of now.
//
// Stored status is authoritative for terminal states only; for live events the
// presented status reconciles wall-clock time and the live participant count,
// which the stored value may not reflect yet (the sweeper converges them).
//
// Precedence, first match wins:
//  1. cancelled/completed stay as stored
//  2. date in the past => completed
//  3. at or over capacity => full
//  4. otherwise open (any other stored value normalizes to open)
//
// Every read path that presents an event status must go through this function.
func ResolveStatus(e *Event, now time.Time) EventStatus {
	if e.Status.Terminal() {
		return e.Status
	}
	if e.Date.Before(now) {
		return StatusCompleted
	}
	if e.ParticipantCount >= e.MaxParticipants {
		return StatusFull
	}
	return StatusOpen
}
