package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/contract-approval/internal/application/port"
	"github.com/garyjia/contract-approval/internal/domain/workflow"
)

var (
	httpDurationBuckets       = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	transitionDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Metrics holds the Prometheus instruments of the approval service
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	ClonesTotal        *prometheus.CounterVec

	NotificationsTotal  *prometheus.CounterVec
	EffectFailuresTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// InitMetrics creates and registers all instruments on reg
func InitMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approval_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "route"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_transitions_total",
			Help: "Workflow operations by outcome.",
		}, []string{"operation", "result"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approval_transition_duration_seconds",
			Help:    "Workflow operation duration including lock wait.",
			Buckets: transitionDurationBuckets,
		}, []string{"operation"}),
		ClonesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_template_clones_total",
			Help: "Templates cloned because they were already bound.",
		}, []string{"kind"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_notifications_total",
			Help: "Notification deliveries by channel and outcome.",
		}, []string{"channel", "status"}),
		EffectFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_effect_failures_total",
			Help: "Post-commit effects that failed.",
		}, []string{"type"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.TransitionDuration,
		m.ClonesTotal,
		m.NotificationsTotal,
		m.EffectFailuresTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordTransition records a workflow operation and its outcome class
func (m *Metrics) RecordTransition(operation string, err error, elapsed time.Duration) {
	m.TransitionsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	m.TransitionDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordClone counts a template clone
func (m *Metrics) RecordClone(kind string) {
	m.ClonesTotal.WithLabelValues(kind).Inc()
}

// RecordNotification counts a delivery attempt on one channel
func (m *Metrics) RecordNotification(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordEffectFailure counts a failed post-commit effect
func (m *Metrics) RecordEffectFailure(effectType string) {
	m.EffectFailuresTotal.WithLabelValues(effectType).Inc()
}

// Outcome maps an operation error to a low-cardinality label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, workflow.ErrNotFound):
		return "not_found"
	case errors.Is(err, workflow.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, workflow.ErrConflict):
		return "conflict"
	case errors.Is(err, workflow.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

var _ port.Metrics = (*Metrics)(nil)
