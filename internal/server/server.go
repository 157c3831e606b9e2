package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avernost/depwatch/internal/alert"
	"github.com/avernost/depwatch/internal/config"
	"github.com/avernost/depwatch/internal/scheduler"
	"github.com/avernost/depwatch/internal/state"
	"github.com/avernost/depwatch/internal/storage"
)

// Monitor is the engine surface the API reads from.
type Monitor interface {
	RunCycle(ctx context.Context) scheduler.CycleSummary
	LastSummary() (scheduler.CycleSummary, bool)
	States() map[string]state.ServiceState
	Ledger() *alert.Ledger
	Thresholds() alert.Thresholds
	Services() []config.Service
}

// HistoryStore defines the probe-log queries the server needs.
type HistoryStore interface {
	ServiceHistory(ctx context.Context, service string, limit, offset int) ([]storage.Probe, int, error)
	UptimePercent(ctx context.Context, service string, last int) (float64, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	monitor Monitor
	history HistoryStore
	router  chi.Router
	logger  *slog.Logger
}

// New creates a Server and registers all routes. history may be nil when
// the probe log is disabled; gatherer serves the /metrics exposition.
func New(monitor Monitor, history HistoryStore, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		monitor: monitor,
		history: history,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.registerRoutes(gatherer)
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/alerts", s.handleAlerts)
	r.Get("/api/services/{name}/history", s.handleServiceHistory)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

type healthService struct {
	Name      string     `json:"name"`
	Critical  bool       `json:"critical"`
	Status    string     `json:"status"`
	LatencyMs int64      `json:"latency_ms"`
	Error     string     `json:"error,omitempty"`
	CheckedAt *time.Time `json:"checked_at"`
}

type healthResponse struct {
	Verdict           scheduler.Verdict `json:"verdict"`
	Total             int               `json:"total"`
	Healthy           int               `json:"healthy"`
	Unhealthy         int               `json:"unhealthy"`
	CriticalUnhealthy int               `json:"critical_unhealthy"`
	Services          []healthService   `json:"services"`
}

// handleHealth reports the most recent cycle. The HTTP status mirrors the
// verdict so upstream probes of depwatch itself behave correctly. With
// ?live=1 a fresh cycle is run first.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var summary scheduler.CycleSummary
	var ok bool

	if live := r.URL.Query().Get("live"); live == "1" || live == "true" {
		summary = s.monitor.RunCycle(r.Context())
		ok = true
	} else {
		summary, ok = s.monitor.LastSummary()
	}

	if !ok {
		// No completed cycle yet: every service is unknown, not an error.
		services := make([]healthService, 0, len(s.monitor.Services()))
		for _, svc := range s.monitor.Services() {
			services = append(services, healthService{
				Name:     svc.Name,
				Critical: svc.Critical,
				Status:   "unknown",
			})
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Verdict:  scheduler.VerdictHealthy,
			Total:    len(services),
			Services: services,
		})
		return
	}

	resp := healthResponse{
		Verdict:           summary.Verdict,
		Total:             summary.Total,
		Healthy:           summary.Healthy,
		Unhealthy:         summary.Unhealthy,
		CriticalUnhealthy: summary.CriticalUnhealthy,
		Services:          make([]healthService, 0, len(summary.Results)),
	}
	for _, res := range summary.Results {
		status := "unhealthy"
		if res.Healthy {
			status = "healthy"
		}
		t := res.CheckedAt
		resp.Services = append(resp.Services, healthService{
			Name:      res.Name,
			Critical:  res.Critical,
			Status:    status,
			LatencyMs: res.LatencyMs,
			Error:     res.Error,
			CheckedAt: &t,
		})
	}

	code := http.StatusOK
	if summary.Verdict == scheduler.VerdictUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type serviceStatus struct {
	Name                string     `json:"name"`
	Kind                string     `json:"kind"`
	Target              string     `json:"target"`
	Critical            bool       `json:"critical"`
	Known               bool       `json:"known"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalChecks         int        `json:"total_checks"`
	TotalFailures       int        `json:"total_failures"`
	ErrorRate           float64    `json:"error_rate"`
	LastHealthyAt       *time.Time `json:"last_healthy_at"`
	LastCheckedAt       *time.Time `json:"last_checked_at"`
}

type thresholdsView struct {
	ConsecutiveFailures int     `json:"consecutive_failures"`
	ErrorRate           float64 `json:"error_rate"`
	SlowResponseMs      int64   `json:"slow_response_ms"`
}

type statusResponse struct {
	Services     []serviceStatus `json:"services"`
	RecentAlerts []alert.Alert   `json:"recent_alerts"`
	AlertsTotal  uint64          `json:"alerts_total"`
	Thresholds   thresholdsView  `json:"thresholds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	states := s.monitor.States()
	t := s.monitor.Thresholds()

	services := make([]serviceStatus, 0, len(s.monitor.Services()))
	for _, svc := range s.monitor.Services() {
		ss := serviceStatus{
			Name:     svc.Name,
			Kind:     svc.Kind,
			Target:   svc.Target,
			Critical: svc.Critical,
		}
		if st, ok := states[svc.Name]; ok {
			ss.Known = true
			ss.ConsecutiveFailures = st.ConsecutiveFailures
			ss.TotalChecks = st.TotalChecks
			ss.TotalFailures = st.TotalFailures
			ss.ErrorRate = st.ErrorRate()
			ss.LastHealthyAt = st.LastHealthyAt
			ss.LastCheckedAt = st.LastCheckedAt
		}
		services = append(services, ss)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Services:     services,
		RecentAlerts: s.monitor.Ledger().Recent(20),
		AlertsTotal:  s.monitor.Ledger().TotalAccepted(),
		Thresholds: thresholdsView{
			ConsecutiveFailures: t.ConsecutiveFailures,
			ErrorRate:           t.ErrorRate,
			SlowResponseMs:      t.SlowResponse.Milliseconds(),
		},
	})
}

type alertsResponse struct {
	Alerts []alert.Alert `json:"alerts"`
	Total  uint64        `json:"total_accepted"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 1000

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, alertsResponse{
		Alerts: s.monitor.Ledger().Recent(limit),
		Total:  s.monitor.Ledger().TotalAccepted(),
	})
}

type historyResponse struct {
	Probes    []storage.Probe `json:"probes"`
	Total     int             `json:"total"`
	UptimePct float64         `json:"uptime_percent"`
}

func (s *Server) handleServiceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "probe history is disabled")
		return
	}

	name := chi.URLParam(r, "name")
	known := false
	for _, svc := range s.monitor.Services() {
		if svc.Name == name {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	const maxLimit = 1000
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	probes, total, err := s.history.ServiceHistory(r.Context(), name, limit, offset)
	if err != nil {
		s.logger.Error("ServiceHistory", "service", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	pct, _ := s.history.UptimePercent(r.Context(), name, 100)

	writeJSON(w, http.StatusOK, historyResponse{
		Probes:    probes,
		Total:     total,
		UptimePct: pct,
	})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
