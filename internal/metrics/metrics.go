// Package metrics exposes Prometheus instruments for the edit workflow and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry            *prometheus.Registry
	draftSaves          *prometheus.CounterVec
	draftSubmissions    *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		draftSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcards_draft_saves_total",
				Help: "Draft save attempts by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		draftSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcards_draft_submissions_total",
				Help: "Draft submissions for review by result.",
			},
			[]string{"result"},
		),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modelcards_active_edit_sessions",
			Help: "Edit sessions currently enabled.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcards_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelcards_http_request_duration_seconds",
				Help:    "Histogram of HTTP request durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
	m.registry.MustRegister(
		m.draftSaves,
		m.draftSubmissions,
		m.activeSessions,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) RecordSave(trigger string, err error) {
	m.draftSaves.WithLabelValues(trigger, result(err)).Inc()
}

func (m *Metrics) RecordSubmission(err error) {
	m.draftSubmissions.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func classifyStatus(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
