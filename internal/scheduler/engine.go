// Package scheduler drives the probe-evaluate-notify cycle.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avernost/depwatch/internal/alert"
	"github.com/avernost/depwatch/internal/checker"
	"github.com/avernost/depwatch/internal/config"
	"github.com/avernost/depwatch/internal/metrics"
	"github.com/avernost/depwatch/internal/notify"
	"github.com/avernost/depwatch/internal/state"
)

// Verdict is the overall health outcome of one cycle.
type Verdict string

const (
	VerdictHealthy   Verdict = "healthy"
	VerdictUnhealthy Verdict = "unhealthy"
)

// HistoryStore is the optional probe audit log.
type HistoryStore interface {
	InsertProbe(ctx context.Context, r checker.CheckResult) error
}

// ServiceResult is one service's outcome within a cycle.
type ServiceResult struct {
	Name      string    `json:"name"`
	Critical  bool      `json:"critical"`
	Healthy   bool      `json:"healthy"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// CycleSummary describes one completed cycle.
type CycleSummary struct {
	Verdict           Verdict         `json:"verdict"`
	Total             int             `json:"total"`
	Healthy           int             `json:"healthy"`
	Unhealthy         int             `json:"unhealthy"`
	CriticalUnhealthy int             `json:"critical_unhealthy"`
	Results           []ServiceResult `json:"results"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
}

// Engine owns the service list, the state store, and the alert ledger, and
// runs the full pipeline for every service each cycle.
type Engine struct {
	services   []config.Service
	checkers   map[string]checker.Checker
	states     *state.Store
	ledger     *alert.Ledger
	thresholds alert.Thresholds
	fanout     *notify.Fanout
	history    HistoryStore
	interval   time.Duration
	logger     *slog.Logger

	// cycleMu serializes cycles: a tick that arrives while a cycle is
	// still in flight is skipped.
	cycleMu sync.Mutex

	lastMu sync.RWMutex
	last   *CycleSummary

	wg sync.WaitGroup
}

// New builds an Engine. history may be nil to disable the probe log; pass
// nil logger to use the default logger.
func New(
	services []config.Service,
	timeout time.Duration,
	interval time.Duration,
	states *state.Store,
	ledger *alert.Ledger,
	thresholds alert.Thresholds,
	fanout *notify.Fanout,
	history HistoryStore,
	logger *slog.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	checkers := make(map[string]checker.Checker, len(services))
	for _, svc := range services {
		c, err := checker.New(svc, timeout)
		if err != nil {
			return nil, err
		}
		checkers[svc.Name] = c
	}

	return &Engine{
		services:   services,
		checkers:   checkers,
		states:     states,
		ledger:     ledger,
		thresholds: thresholds,
		fanout:     fanout,
		history:    history,
		interval:   interval,
		logger:     logger,
	}, nil
}

// Services returns the configured service list.
func (e *Engine) Services() []config.Service {
	return e.services
}

// Thresholds returns the active alert thresholds.
func (e *Engine) Thresholds() alert.Thresholds {
	return e.thresholds
}

// States returns a snapshot of all service states.
func (e *Engine) States() map[string]state.ServiceState {
	return e.states.Snapshot()
}

// Ledger returns the alert ledger for read-only queries.
func (e *Engine) Ledger() *alert.Ledger {
	return e.ledger
}

// Start runs a cycle immediately, then one per interval until ctx is
// cancelled. It is non-blocking.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.RunCycle(ctx)

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.tryRunCycle(ctx)
			}
		}
	}()
}

// Wait blocks until the cycle loop has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// LastSummary returns the most recent completed cycle, if any.
func (e *Engine) LastSummary() (CycleSummary, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return CycleSummary{}, false
	}
	return *e.last, true
}

// tryRunCycle skips the tick if a cycle is still in flight.
func (e *Engine) tryRunCycle(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		e.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer e.cycleMu.Unlock()
	e.runCycle(ctx)
}

// RunCycle probes every service concurrently, feeds each result through the
// state store, evaluator, ledger, and notifier, and returns the cycle
// summary. Cycles are serialized; an on-demand call waits for any
// in-flight cycle.
func (e *Engine) RunCycle(ctx context.Context) CycleSummary {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	return e.runCycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) CycleSummary {
	summary := CycleSummary{
		Total:     len(e.services),
		StartedAt: time.Now(),
		Results:   make([]ServiceResult, len(e.services)),
	}

	var wg sync.WaitGroup
	for i, svc := range e.services {
		wg.Add(1)
		go func(i int, svc config.Service) {
			defer wg.Done()
			summary.Results[i] = e.checkService(ctx, svc)
		}(i, svc)
	}
	wg.Wait()

	for _, r := range summary.Results {
		if r.Healthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
			if r.Critical {
				summary.CriticalUnhealthy++
			}
		}
	}
	summary.Verdict = VerdictHealthy
	if summary.CriticalUnhealthy > 0 {
		summary.Verdict = VerdictUnhealthy
	}
	summary.FinishedAt = time.Now()

	e.lastMu.Lock()
	e.last = &summary
	e.lastMu.Unlock()

	metrics.ObserveCycle()
	e.logger.Info("cycle complete",
		"verdict", summary.Verdict,
		"healthy", summary.Healthy,
		"unhealthy", summary.Unhealthy,
		"critical_unhealthy", summary.CriticalUnhealthy,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary
}

// checkService runs the full per-service pipeline. A panic anywhere in the
// pipeline is contained so the other services' checks still complete.
func (e *Engine) checkService(ctx context.Context, svc config.Service) (sr ServiceResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("pipeline panic", "service", svc.Name, "panic", r)
			sr = ServiceResult{
				Name:      svc.Name,
				Critical:  svc.Critical,
				Error:     "internal pipeline error",
				CheckedAt: time.Now(),
			}
		}
	}()

	result := e.checkers[svc.Name].Check(ctx)

	st := e.states.Apply(result)
	metrics.ObserveCheck(svc.Name, result.Healthy, st)

	if e.history != nil {
		if err := e.history.InsertProbe(ctx, result); err != nil {
			e.logger.Error("storing probe result", "service", svc.Name, "error", err)
		}
	}

	e.logger.Info("check result",
		"service", svc.Name,
		"healthy", result.Healthy,
		"latency", result.Latency,
		"error", result.Error,
	)

	for _, a := range alert.Evaluate(svc, st, result, e.thresholds) {
		if !e.ledger.Offer(a) {
			e.logger.Info("alert suppressed by cool-off", "service", a.ServiceName, "kind", a.Kind)
			continue
		}
		metrics.ObserveAlert(a)
		e.logger.Warn("alert raised",
			"service", a.ServiceName,
			"kind", a.Kind,
			"severity", a.Severity,
			"message", a.Message,
		)
		e.fanout.Dispatch(a)
	}

	return ServiceResult{
		Name:      svc.Name,
		Critical:  svc.Critical,
		Healthy:   result.Healthy,
		LatencyMs: result.Latency.Milliseconds(),
		Error:     result.Error,
		CheckedAt: result.CheckedAt,
	}
}
