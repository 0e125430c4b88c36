package models

import "time"

// AdmissionKey is the single shared window every relayed write is counted against.
const AdmissionKey = "ingressgw:admission:relay"

// AdmissionResult is the outcome of one admission attempt against the fixed window.
type AdmissionResult struct {
	Admitted    bool      `json:"admitted"`
	Limit       int       `json:"limit"`
	Count       int       `json:"count"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
	// Degraded is set when the result came from the in-memory fallback.
	Degraded bool `json:"degraded,omitempty"`
}

// NewAdmissionResult derives the remaining budget from count and limit.
func NewAdmissionResult(count, limit int, windowStart time.Time, window time.Duration) *AdmissionResult {
	remaining := max(limit-count, 0)
	return &AdmissionResult{
		Admitted:    count <= limit,
		Limit:       limit,
		Count:       count,
		Remaining:   remaining,
		WindowStart: windowStart,
		ResetAt:     windowStart.Add(window),
	}
}

// RetryAfter is the time left until the window resets, never negative.
func (r *AdmissionResult) RetryAfter(now time.Time) time.Duration {
	return max(r.ResetAt.Sub(now), 0)
}
