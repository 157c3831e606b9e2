// Package alert turns service state into alert events and decides which of
// them are worth keeping.
package alert

import "time"

// Kind identifies the rule that produced an alert.
type Kind string

const (
	KindConsecutiveFailures Kind = "consecutive_failures"
	KindHighErrorRate       Kind = "high_error_rate"
	KindSlowResponse        Kind = "slow_response"
)

// Severity is the alert severity level.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single alert event.
type Alert struct {
	Kind        Kind      `json:"kind"`
	ServiceName string    `json:"service"`
	Critical    bool      `json:"critical"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
}

// DedupKey identifies alerts that should be deduplicated against each other.
func (a Alert) DedupKey() string {
	return string(a.Kind) + ":" + a.ServiceName
}
