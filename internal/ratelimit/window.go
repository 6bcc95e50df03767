// Package ratelimit decides whether a request is admitted under the
// per-identity windowed quotas shared by all service instances. The
// serialization point is the backing store's atomic increment, never
// in-process locking, because callers run as independent processes.
package ratelimit

import "time"

// Window identifies a quota policy tier. The set is closed and the
// per-window rules are read-only after load.
type Window string

const (
	WindowPerMinute Window = "per_minute"
	WindowPerHour   Window = "per_hour"
	WindowPerDay    Window = "per_day"
)

// Rule is the (limit, duration) pair enforced for one window tier.
type Rule struct {
	Limit    int
	Duration time.Duration
}

// Rules maps every enforced window tier to its rule.
type Rules map[Window]Rule

// DefaultRules returns the built-in quota table. Deployments override the
// limits through configuration.
func DefaultRules() Rules {
	return Rules{
		WindowPerMinute: {Limit: 60, Duration: time.Minute},
		WindowPerHour:   {Limit: 1000, Duration: time.Hour},
		WindowPerDay:    {Limit: 10000, Duration: 24 * time.Hour},
	}
}

// Result is a point-in-time admission decision. Computed fresh on every
// check and never persisted.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
	Window    Window
}
