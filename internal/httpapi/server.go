// Package httpapi serves the read-only diagnostics API: health, Prometheus
// metrics, per-instrument baselines, on-demand analyses and the alert log.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/risk"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
	analysisTimeout   = 30 * time.Second
)

// Engine is the part of the monitor the API reads.
type Engine interface {
	// Peek analyzes without recording the book in the baseline.
	Peek(ctx context.Context, instrument string) models.RiskAssessment
	Baseline(instrument string) (models.BaselineStats, bool)
	AlertPhase(instrument string) risk.Phase
	LastAlert(instrument string) (time.Time, bool)
	Instruments() []string
}

// AlertLog lists delivered alerts. An empty instrument lists all of them.
type AlertLog interface {
	RecentAlerts(instrument string, limit int) ([]models.AlertRecord, error)
}

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

type Server struct {
	router  *mux.Router
	engine  Engine
	alerts  AlertLog
	metrics http.Handler
	checks  map[string]Checker
}

// New builds the router. alerts and metrics may be nil; their routes then
// answer 404.
func New(engine Engine, alerts AlertLog, metrics http.Handler, checks map[string]Checker) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		engine:  engine,
		alerts:  alerts,
		metrics: metrics,
		checks:  checks,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestID, logRequests)

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/instruments", s.instruments).Methods(http.MethodGet)
	api.HandleFunc("/instruments/{symbol}/baseline", s.baseline).Methods(http.MethodGet)
	api.HandleFunc("/instruments/{symbol}/analysis", s.analysis).Methods(http.MethodGet)
	if s.alerts != nil {
		api.HandleFunc("/alerts", s.alertLog).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      analysisTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown: %v", err)
		}
	}()

	logger.Info("HTTP server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"healthy": healthy, "checks": status})
}

func (s *Server) instruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"instruments": s.engine.Instruments()})
}

type baselineResponse struct {
	Instrument string               `json:"instrument"`
	Valid      bool                 `json:"valid"`
	Stats      models.BaselineStats `json:"stats"`
	AlertPhase string               `json:"alert_phase"`
	LastAlert  *time.Time           `json:"last_alert,omitempty"`
}

func (s *Server) baseline(w http.ResponseWriter, r *http.Request) {
	inst, ok := instrumentVar(w, r)
	if !ok {
		return
	}
	stats, valid := s.engine.Baseline(inst)
	resp := baselineResponse{
		Instrument: inst,
		Valid:      valid,
		Stats:      stats,
		AlertPhase: s.engine.AlertPhase(inst).String(),
	}
	if last, ok := s.engine.LastAlert(inst); ok {
		resp.LastAlert = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	inst, ok := instrumentVar(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), analysisTimeout)
	defer cancel()

	a := s.engine.Peek(ctx, inst)
	code := http.StatusOK
	if a.Failed() {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, a)
}

func (s *Server) alertLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAlertLimit)
	}

	inst := ""
	if v := r.URL.Query().Get("instrument"); v != "" {
		inst = models.NormalizeInstrument(decodeSymbol(v))
		if err := models.ValidateInstrument(inst); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	records, err := s.alerts.RecentAlerts(inst, limit)
	if err != nil {
		logger.Error("Failed to list alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if records == nil {
		records = []models.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": records})
}

// decodeSymbol accepts BTC-USDT in paths, where a slash would split the route.
func decodeSymbol(s string) string {
	return strings.ReplaceAll(s, "-", "/")
}

func instrumentVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	inst := models.NormalizeInstrument(decodeSymbol(mux.Vars(r)["symbol"]))
	if err := models.ValidateInstrument(inst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return inst, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("%s %s %d %v [%s]", r.Method, r.URL.Path, rec.status, time.Since(start), w.Header().Get("X-Request-ID"))
	})
}
