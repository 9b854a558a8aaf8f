// Package resolution owns the per-record resolution lifecycle: which statuses
// exist, how fetch outcomes move a record between them, and when a record
// becomes eligible for another attempt.
package resolution

import (
	"time"

	"github.com/resale-scanner/internal/types"
)

// Policy holds the escalation and cooldown knobs for state transitions.
type Policy struct {
	// FailureThreshold is the failure count at which a record escalates to
	// manual review.
	FailureThreshold int
	// ShortCooldown delays the next attempt after a transient failure.
	ShortCooldown time.Duration
	// LongCooldown delays the next attempt after escalation or timeout.
	LongCooldown time.Duration
}

// State is the mutable resolution slice of a record.
type State struct {
	Status       types.ResolutionStatus
	FailureCount int
	LastError    *string
	SkipUntil    *time.Time
}

// Apply returns the state after one fetch outcome. The input state is not
// modified. OutcomeRateLimited must be resolved by the caller first: the
// resolve flow retries inline and the enrich flow defers, so by the time a
// transition is recorded a rate limit has either turned into another outcome
// or left the state untouched.
func Apply(state State, outcome types.FetchOutcome, errMsg string, now time.Time, policy Policy) State {
	next := state

	switch outcome {
	case types.OutcomeFound:
		next.Status = types.StatusSuccess
		next.FailureCount = 0
		next.LastError = nil
		next.SkipUntil = nil

	case types.OutcomeNotFound:
		// Terminal: the code has no listing. Re-applying is a no-op.
		next.Status = types.StatusNotFound
		next.LastError = nil
		next.SkipUntil = nil

	default:
		next.FailureCount = state.FailureCount + 1
		if errMsg != "" {
			next.LastError = &errMsg
		}
		if next.FailureCount >= policy.FailureThreshold {
			next.Status = types.StatusManualReview
			until := now.Add(policy.LongCooldown)
			next.SkipUntil = &until
		} else {
			next.Status = types.StatusAPIError
			until := now.Add(policy.ShortCooldown)
			next.SkipUntil = &until
		}
	}

	return next
}

// MarkTimeout records a storage write timeout. The failure count is not
// advanced: the upstream call itself succeeded or never happened, and the
// record should come back after a long cooldown rather than escalate.
func MarkTimeout(state State, errMsg string, now time.Time, policy Policy) State {
	next := state
	next.Status = types.StatusTimeout
	if errMsg != "" {
		next.LastError = &errMsg
	}
	until := now.Add(policy.LongCooldown)
	next.SkipUntil = &until
	return next
}

// Eligible reports whether a record may be attempted at now. Terminal
// statuses never qualify; cooldowns and the recent-attempt exclusion window
// both have to have elapsed.
func Eligible(state State, lastAttemptAt *time.Time, now time.Time, exclusionWindow time.Duration) bool {
	if state.Status.Terminal() {
		return false
	}
	if state.SkipUntil != nil && now.Before(*state.SkipUntil) {
		return false
	}
	if lastAttemptAt != nil && now.Sub(*lastAttemptAt) < exclusionWindow {
		return false
	}
	return true
}
