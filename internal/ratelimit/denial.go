package ratelimit

import (
	"fmt"
	"time"
)

// Denial is the wire payload returned to clients that hit a quota. The shape
// is shared across services and must stay bit-exact.
type Denial struct {
	Success bool        `json:"success"`
	Error   DenialError `json:"error"`
}

type DenialError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details DenialDetails `json:"details"`
}

type DenialDetails struct {
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	Window     string `json:"window,omitempty"`
	ResetAt    string `json:"resetAt,omitempty"`
	Operation  string `json:"operation,omitempty"`
}

// DenialOptions carries optional context echoed into the denial details.
type DenialOptions struct {
	Window    Window
	ResetAt   time.Time
	Operation string
}

// BuildDenial formats the standardized rate-limit denial payload. Pure
// formatting: no side effects, always succeeds. retryAfterSeconds is clamped
// to zero so a window that just reset never yields a negative hint.
func BuildDenial(retryAfterSeconds, limit, remaining int, opts ...DenialOptions) Denial {
	if retryAfterSeconds < 0 {
		retryAfterSeconds = 0
	}
	if remaining < 0 {
		remaining = 0
	}

	details := DenialDetails{
		RetryAfter: retryAfterSeconds,
		Limit:      limit,
		Remaining:  remaining,
	}
	if len(opts) > 0 {
		details.Window = string(opts[0].Window)
		if !opts[0].ResetAt.IsZero() {
			details.ResetAt = opts[0].ResetAt.UTC().Format(time.RFC3339)
		}
		details.Operation = opts[0].Operation
	}

	return Denial{
		Success: false,
		Error: DenialError{
			Code:    "RATE_LIMITED",
			Message: fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfterSeconds),
			Details: details,
		},
	}
}

// RetryAfterSeconds computes the denial hint from a window reset time,
// clamped to zero.
func RetryAfterSeconds(resetAt, now time.Time) int {
	seconds := int(resetAt.Sub(now).Round(time.Second).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}
