package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/avernost/depwatch/internal/checker"
	"github.com/avernost/depwatch/internal/config"
	"github.com/avernost/depwatch/internal/state"
)

// Error-rate evaluation only starts once this many checks have accumulated,
// so a single cold-start failure does not trip the threshold.
const errorRateMinChecks = 10

// Thresholds are the trigger levels the evaluator applies.
type Thresholds struct {
	ConsecutiveFailures int
	ErrorRate           float64
	SlowResponse        time.Duration
}

// ThresholdsFromConfig converts the config representation.
func ThresholdsFromConfig(t config.Thresholds) Thresholds {
	return Thresholds{
		ConsecutiveFailures: t.ConsecutiveFailures,
		ErrorRate:           t.ErrorRate,
		SlowResponse:        t.SlowResponse.Duration,
	}
}

// Evaluate inspects one post-update state against the thresholds and returns
// zero or more alerts. It is a pure function of its inputs; all applicable
// rules fire independently.
func Evaluate(svc config.Service, st state.ServiceState, result checker.CheckResult, t Thresholds) []Alert {
	var alerts []Alert
	now := result.CheckedAt

	severity := SeverityWarning
	if svc.Critical {
		severity = SeverityCritical
	}

	if st.ConsecutiveFailures >= t.ConsecutiveFailures {
		alerts = append(alerts, Alert{
			Kind:        KindConsecutiveFailures,
			ServiceName: svc.Name,
			Critical:    svc.Critical,
			Severity:    severity,
			Message:     fmt.Sprintf("%s has failed %d consecutive checks", svc.Name, st.ConsecutiveFailures),
			Value:       float64(st.ConsecutiveFailures),
			CreatedAt:   now,
		})
	}

	if st.TotalChecks > errorRateMinChecks && st.ErrorRate() > t.ErrorRate {
		pct := math.Round(st.ErrorRate() * 100)
		alerts = append(alerts, Alert{
			Kind:        KindHighErrorRate,
			ServiceName: svc.Name,
			Critical:    svc.Critical,
			Severity:    severity,
			Message:     fmt.Sprintf("%s error rate is %.0f%% (%d of %d checks failed)", svc.Name, pct, st.TotalFailures, st.TotalChecks),
			Value:       pct,
			CreatedAt:   now,
		})
	}

	// Slow responses are informational regardless of criticality.
	if result.Healthy && result.Latency > t.SlowResponse {
		alerts = append(alerts, Alert{
			Kind:        KindSlowResponse,
			ServiceName: svc.Name,
			Critical:    svc.Critical,
			Severity:    SeverityWarning,
			Message:     fmt.Sprintf("%s responded in %dms", svc.Name, result.Latency.Milliseconds()),
			Value:       float64(result.Latency.Milliseconds()),
			CreatedAt:   now,
		})
	}

	return alerts
}
