// Package metrics exposes depwatch health state to Prometheus scrapers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avernost/depwatch/internal/alert"
	"github.com/avernost/depwatch/internal/state"
)

var (
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "depwatch",
			Name:      "service_up",
			Help:      "Whether the last probe of the service succeeded (1) or failed (0).",
		},
		[]string{"service"},
	)

	consecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "depwatch",
			Name:      "service_consecutive_failures",
			Help:      "Current run of consecutive failed probes for the service.",
		},
		[]string{"service"},
	)

	errorRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "depwatch",
			Name:      "service_error_rate",
			Help:      "All-time ratio of failed probes for the service.",
		},
		[]string{"service"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "depwatch",
			Name:      "alerts_total",
			Help:      "Total accepted alerts, partitioned by kind and severity.",
		},
		[]string{"kind", "severity"},
	)

	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "depwatch",
			Name:      "cycles_total",
			Help:      "Total completed check cycles.",
		},
	)
)

// Register attaches the depwatch collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		serviceUp,
		consecutiveFailures,
		errorRate,
		alertsTotal,
		cyclesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCheck records the outcome of one probe against the post-update state.
func ObserveCheck(service string, healthy bool, st state.ServiceState) {
	up := 0.0
	if healthy {
		up = 1.0
	}
	serviceUp.WithLabelValues(service).Set(up)
	consecutiveFailures.WithLabelValues(service).Set(float64(st.ConsecutiveFailures))
	errorRate.WithLabelValues(service).Set(st.ErrorRate())
}

// ObserveAlert counts one accepted alert.
func ObserveAlert(a alert.Alert) {
	alertsTotal.WithLabelValues(string(a.Kind), string(a.Severity)).Inc()
}

// ObserveCycle counts one completed cycle.
func ObserveCycle() {
	cyclesTotal.Inc()
}
