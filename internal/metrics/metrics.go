// Package metrics exposes Prometheus instruments for the risk engine. A nil
// *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mmradar"

type Registry struct {
	reg *prometheus.Registry

	AnalysisDuration *prometheus.HistogramVec
	Analyses         *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
	Signals          *prometheus.CounterVec
	RiskScore        *prometheus.GaugeVec
	AlertsSent       *prometheus.CounterVec
	ExchangeRequests *prometheus.CounterVec
	ScanInstruments  prometheus.Gauge
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Duration of a full instrument analysis including fetches",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),
		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Analyses by resulting severity tier",
			},
			[]string{"severity"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Market data fetch failures by source",
			},
			[]string{"source"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Detected signals by type and severity",
			},
			[]string{"type", "severity"},
		),
		RiskScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Latest risk score per instrument",
			},
			[]string{"instrument"},
		),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_sent_total",
				Help:      "Alerts delivered by severity tier",
			},
			[]string{"severity"},
		),
		ExchangeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchange_requests_total",
				Help:      "Exchange REST requests by endpoint and outcome",
			},
			[]string{"endpoint", "status"},
		),
		ScanInstruments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scan_instruments",
				Help:      "Instruments covered by the last scan",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.AnalysisDuration,
		r.Analyses,
		r.FetchErrors,
		r.Signals,
		r.RiskScore,
		r.AlertsSent,
		r.ExchangeRequests,
		r.ScanInstruments,
	)
	return r
}

// Gatherer returns the underlying registry for tests and custom exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveAnalysis(instrument, severity string, score int, failed bool, took time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	} else {
		r.Analyses.WithLabelValues(severity).Inc()
		r.RiskScore.WithLabelValues(instrument).Set(float64(score))
	}
	r.AnalysisDuration.WithLabelValues(result).Observe(took.Seconds())
}

func (r *Registry) FetchFailed(source string) {
	if r == nil {
		return
	}
	r.FetchErrors.WithLabelValues(source).Inc()
}

func (r *Registry) SignalDetected(typ, severity string) {
	if r == nil {
		return
	}
	r.Signals.WithLabelValues(typ, severity).Inc()
}

func (r *Registry) AlertSent(severity string) {
	if r == nil {
		return
	}
	r.AlertsSent.WithLabelValues(severity).Inc()
}

func (r *Registry) ExchangeRequest(endpoint, status string) {
	if r == nil {
		return
	}
	r.ExchangeRequests.WithLabelValues(endpoint, status).Inc()
}

func (r *Registry) SetScanSize(n int) {
	if r == nil {
		return
	}
	r.ScanInstruments.Set(float64(n))
}
