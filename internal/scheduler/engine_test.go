package scheduler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avernost/depwatch/internal/alert"
	"github.com/avernost/depwatch/internal/config"
	"github.com/avernost/depwatch/internal/notify"
	"github.com/avernost/depwatch/internal/scheduler"
	"github.com/avernost/depwatch/internal/state"
)

// recordingChannel captures dispatched alerts.
type recordingChannel struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Deliver(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) snapshot() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]alert.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func defaultThresholds() alert.Thresholds {
	return alert.Thresholds{
		ConsecutiveFailures: 3,
		ErrorRate:           0.10,
		SlowResponse:        5 * time.Second,
	}
}

func newEngine(t *testing.T, services []config.Service, thresholds alert.Thresholds, channel notify.Channel) *scheduler.Engine {
	t.Helper()
	var channels []notify.Channel
	if channel != nil {
		channels = append(channels, channel)
	}
	engine, err := scheduler.New(
		services,
		time.Second,
		time.Hour,
		state.NewStore(),
		alert.NewLedger(5*time.Minute, time.Hour),
		thresholds,
		notify.NewFanout(channels, nil),
		nil,
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func waitForAlerts(t *testing.T, ch *recordingChannel, want int) []alert.Alert {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := ch.snapshot(); len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ch.snapshot()
}

func TestEngine_CycleSummaryCounts(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	services := []config.Service{
		{Name: "healthy-svc", Kind: "http", Target: up.URL, Critical: true},
		{Name: "broken-svc", Kind: "http", Target: down.URL},
	}
	engine := newEngine(t, services, defaultThresholds(), nil)

	summary := engine.RunCycle(context.Background())
	if summary.Total != 2 {
		t.Errorf("expected total 2, got %d", summary.Total)
	}
	if summary.Healthy != 1 || summary.Unhealthy != 1 {
		t.Errorf("expected 1 healthy / 1 unhealthy, got %d/%d", summary.Healthy, summary.Unhealthy)
	}
	if summary.CriticalUnhealthy != 0 {
		t.Errorf("expected 0 critical unhealthy, got %d", summary.CriticalUnhealthy)
	}
	if summary.Verdict != scheduler.VerdictHealthy {
		t.Errorf("non-critical failure must not flip the verdict, got %q", summary.Verdict)
	}
}

func TestEngine_CriticalFailureFlipsVerdict(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	services := []config.Service{
		{Name: "critical-svc", Kind: "http", Target: down.URL, Critical: true},
	}
	engine := newEngine(t, services, defaultThresholds(), nil)

	summary := engine.RunCycle(context.Background())
	if summary.CriticalUnhealthy != 1 {
		t.Errorf("expected 1 critical unhealthy, got %d", summary.CriticalUnhealthy)
	}
	if summary.Verdict != scheduler.VerdictUnhealthy {
		t.Errorf("expected unhealthy verdict, got %q", summary.Verdict)
	}
}

func TestEngine_ThreeFailuresProduceOneCriticalAlert(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	services := []config.Service{
		{Name: "pay-api", Kind: "http", Target: down.URL, Critical: true},
	}
	channel := &recordingChannel{}
	engine := newEngine(t, services, defaultThresholds(), channel)

	for i := 0; i < 3; i++ {
		engine.RunCycle(context.Background())
	}

	alerts := waitForAlerts(t, channel, 1)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert after 3 failed cycles, got %d", len(alerts))
	}
	if alerts[0].Kind != alert.KindConsecutiveFailures {
		t.Errorf("expected consecutive_failures, got %q", alerts[0].Kind)
	}
	if alerts[0].Severity != alert.SeverityCritical {
		t.Errorf("expected critical severity, got %q", alerts[0].Severity)
	}
}

func TestEngine_NonCriticalFailuresProduceWarningAlert(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	services := []config.Service{
		{Name: "batch-svc", Kind: "http", Target: down.URL},
	}
	channel := &recordingChannel{}
	engine := newEngine(t, services, defaultThresholds(), channel)

	for i := 0; i < 3; i++ {
		engine.RunCycle(context.Background())
	}

	alerts := waitForAlerts(t, channel, 1)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != alert.SeverityWarning {
		t.Errorf("expected warning severity for non-critical service, got %q", alerts[0].Severity)
	}
}

func TestEngine_SlowResponseAlert(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	services := []config.Service{
		{Name: "slow-svc", Kind: "http", Target: slow.URL, Critical: true},
	}
	thresholds := defaultThresholds()
	thresholds.SlowResponse = 10 * time.Millisecond

	channel := &recordingChannel{}
	engine := newEngine(t, services, thresholds, channel)

	summary := engine.RunCycle(context.Background())
	if summary.Healthy != 1 {
		t.Fatalf("expected the slow service to still count as healthy, got %d healthy", summary.Healthy)
	}

	alerts := waitForAlerts(t, channel, 1)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 slow_response alert, got %d", len(alerts))
	}
	if alerts[0].Kind != alert.KindSlowResponse {
		t.Errorf("expected slow_response, got %q", alerts[0].Kind)
	}
	if alerts[0].Severity != alert.SeverityWarning {
		t.Errorf("slow_response must be warning even for critical services, got %q", alerts[0].Severity)
	}
}

func TestEngine_FastHealthyCheckProducesNoAlert(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	services := []config.Service{
		{Name: "fast-svc", Kind: "http", Target: up.URL},
	}
	channel := &recordingChannel{}
	engine := newEngine(t, services, defaultThresholds(), channel)

	engine.RunCycle(context.Background())

	time.Sleep(100 * time.Millisecond)
	if got := channel.snapshot(); len(got) != 0 {
		t.Errorf("expected no alerts for a fast healthy check, got %d", len(got))
	}
}

func TestEngine_LastSummaryBeforeAnyCycle(t *testing.T) {
	services := []config.Service{
		{Name: "svc", Kind: "tcp", Target: "localhost:1"},
	}
	engine := newEngine(t, services, defaultThresholds(), nil)

	if _, ok := engine.LastSummary(); ok {
		t.Error("expected no summary before the first cycle")
	}
}

func TestEngine_ProbesRunConcurrently(t *testing.T) {
	// Each target takes 100ms; with 4 services a serial cycle would need
	// 400ms while a concurrent one stays near 100ms.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	services := []config.Service{
		{Name: "s1", Kind: "http", Target: target.URL},
		{Name: "s2", Kind: "http", Target: target.URL},
		{Name: "s3", Kind: "http", Target: target.URL},
		{Name: "s4", Kind: "http", Target: target.URL},
	}
	engine := newEngine(t, services, defaultThresholds(), nil)

	start := time.Now()
	engine.RunCycle(context.Background())
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("cycle took %v, probes do not appear to run concurrently", elapsed)
	}
}

func TestEngine_SkipsOverlappingTicks(t *testing.T) {
	var requests int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		time.Sleep(250 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	services := []config.Service{
		{Name: "slow-cycle", Kind: "http", Target: target.URL},
	}
	engine, err := scheduler.New(
		services,
		time.Second,
		50*time.Millisecond, // ticks arrive faster than cycles finish
		state.NewStore(),
		alert.NewLedger(5*time.Minute, time.Hour),
		defaultThresholds(),
		notify.NewFanout(nil, nil),
		nil,
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	engine.Start(ctx)
	<-ctx.Done()
	engine.Wait()

	// Serialized cycles: at most 2 complete in 400ms with 250ms probes.
	// Overlapping cycles would have fired many more requests.
	if n := atomic.LoadInt32(&requests); n > 3 {
		t.Errorf("expected serialized cycles, got %d probe requests", n)
	}
}

func TestEngine_StartRunsImmediately(t *testing.T) {
	var requests int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	services := []config.Service{
		{Name: "svc", Kind: "http", Target: target.URL},
	}
	engine := newEngine(t, services, defaultThresholds(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&requests) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	engine.Wait()

	if atomic.LoadInt32(&requests) < 1 {
		t.Error("expected the first cycle to run immediately after Start")
	}

	if _, ok := engine.LastSummary(); !ok {
		t.Error("expected a summary after the first cycle")
	}
}

func TestEngine_UnknownKindFailsConstruction(t *testing.T) {
	services := []config.Service{
		{Name: "svc", Kind: "icmp", Target: "example.com"},
	}
	_, err := scheduler.New(
		services,
		time.Second,
		time.Hour,
		state.NewStore(),
		alert.NewLedger(time.Minute, time.Hour),
		defaultThresholds(),
		notify.NewFanout(nil, nil),
		nil,
		nil,
	)
	if err == nil {
		t.Error("expected error for unknown checker kind")
	}
}
