package access

import (
	"strconv"
	"time"
)

// Reason says why a code submission failed.
type Reason string

const (
	ReasonLocked  Reason = "locked"
	ReasonLength  Reason = "length"
	ReasonDigits  Reason = "digits"
	ReasonInvalid Reason = "invalid"
)

// Message is the user-facing text for a failure reason.
func (r Reason) Message(codeLength int) string {
	switch r {
	case ReasonLocked:
		return "Account temporarily locked. Please try again later."
	case ReasonLength:
		return "Code must be exactly " + strconv.Itoa(codeLength) + " digits"
	case ReasonDigits:
		return "Code must contain only numbers"
	case ReasonInvalid:
		return "Invalid code"
	default:
		return ""
	}
}

// Attempt is one entry of the login ledger. Entries are never modified once
// appended.
type Attempt struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Reason    Reason    `json:"reason,omitempty"`
}

// appendAttempt adds a to the end of the ledger and keeps the newest limit entries.
func appendAttempt(ledger []Attempt, a Attempt, limit int) []Attempt {
	out := append(append([]Attempt(nil), ledger...), a)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// withoutFailures drops every failure so lockout counting starts over.
func withoutFailures(ledger []Attempt) []Attempt {
	out := make([]Attempt, 0, len(ledger))
	for _, a := range ledger {
		if a.Success {
			out = append(out, a)
		}
	}
	return out
}

// recentFailures returns the failures younger than window, oldest first.
func recentFailures(ledger []Attempt, now time.Time, window time.Duration) []Attempt {
	var out []Attempt
	for _, a := range ledger {
		if !a.Success && now.Sub(a.Timestamp) < window {
			out = append(out, a)
		}
	}
	return out
}

// lockout derives the lock state from the ledger. The lock ends one window
// after the oldest failure that still counts.
func lockout(ledger []Attempt, now time.Time, window time.Duration, maxAttempts int) (failures int, locked bool, remaining time.Duration) {
	recent := recentFailures(ledger, now, window)
	failures = len(recent)
	if failures < maxAttempts {
		return failures, false, 0
	}
	remaining = recent[0].Timestamp.Add(window).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return failures, true, remaining
}
