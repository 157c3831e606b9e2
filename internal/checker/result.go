package checker

import "time"

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	ServiceName string
	Healthy     bool
	Latency     time.Duration
	Error       string
	CheckedAt   time.Time
}
