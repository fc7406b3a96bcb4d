// Package ratelimit implements provider quota tracking and the governor that
// keeps a collection from issuing requests while the quota is exhausted.
// Quota is read from the X-Rate-Limit-Remaining / X-Rate-Limit-Reset headers
// and from the dedicated rate_limit_status endpoint.
package ratelimit

import (
	"time"
)

// QuotaState is the remaining request budget for one provider resource.
type QuotaState struct {
	// Resource is the endpoint path the quota applies to (e.g. "/search/tweets").
	Resource string `json:"resource"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was observed.
	LastUpdate time.Time `json:"last_update"`
}

// Exhausted returns true if no request may be issued before ResetAt.
func (s *QuotaState) Exhausted() bool {
	return s.Remaining <= 0
}

// TimeUntilReset returns the duration from now until the window resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset(now time.Time) time.Duration {
	duration := s.ResetAt.Sub(now)
	if duration < 0 {
		return 0
	}
	return duration
}

// IsStale returns true if the state is older than maxAge.
func (s *QuotaState) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(s.LastUpdate) > maxAge
}
