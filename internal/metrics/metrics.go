// Package metrics wraps Prometheus instrumentation for the handful of
// domain events worth alerting on: cover-assignment gaps (a leave day that
// produced no usable cover), reminder-scan outcomes, and webhook forward
// status. Grounded on noah-isme-sma-adp-api's MetricsService — a private
// prometheus.Registry plus a promhttp handler, rather than the default
// global registry, so tests can construct an isolated instance.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector this service exposes on /metrics. A nil
// *Metrics is valid and every method becomes a no-op, the same
// nil-receiver-safe convention internal/cache.Cache uses, so instrumentation
// can be wired in optionally without every call site branching on it.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	coverAssignmentGaps  *prometheus.CounterVec
	reminderScanOutcomes *prometheus.CounterVec
	webhookForwardStatus *prometheus.CounterVec
	availabilityLookups  *prometheus.CounterVec
	dutyAssignments      *prometheus.CounterVec
}

// New registers every collector against a fresh, private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	coverAssignmentGaps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cover_assignment_gaps_total",
		Help: "Leave-day class periods that could not be assigned a cover teacher",
	}, []string{"reason"})

	reminderScanOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_reminder_scan_outcomes_total",
		Help: "Outcomes of the periodic sick-leave attachment reminder scan",
	}, []string{"outcome"})

	webhookForwardStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_forward_status_total",
		Help: "Outcome of downstream leave-approval forward attempts",
	}, []string{"status"})

	availabilityLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duty_availability_lookups_total",
		Help: "Outcome of external duty-availability API lookups",
	}, []string{"outcome"})

	dutyAssignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duty_assignments_total",
		Help: "Duty-roster assignments created",
	}, []string{"roster"})

	registry.MustRegister(
		httpRequestDuration, httpRequestsTotal,
		coverAssignmentGaps, reminderScanOutcomes, webhookForwardStatus,
		availabilityLookups, dutyAssignments,
	)

	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		httpRequestDuration:  httpRequestDuration,
		httpRequestsTotal:    httpRequestsTotal,
		coverAssignmentGaps:  coverAssignmentGaps,
		reminderScanOutcomes: reminderScanOutcomes,
		webhookForwardStatus: webhookForwardStatus,
		availabilityLookups:  availabilityLookups,
		dutyAssignments:      dutyAssignments,
	}
}

// Handler exposes the registry's Prometheus scrape endpoint. A nil Metrics
// answers 503 so an unconfigured instance still serves a sane response.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one request's duration and outcome.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCoverAssignmentGap increments the gap counter for the given reason
// (e.g. "no_eligible_teacher", "no_free_period").
func (m *Metrics) RecordCoverAssignmentGap(reason string) {
	if m == nil {
		return
	}
	m.coverAssignmentGaps.WithLabelValues(reason).Inc()
}

// RecordReminderScanOutcome increments the reminder-scan counter for one
// processed leave (e.g. "reminded", "escalated", "skipped", "error").
func (m *Metrics) RecordReminderScanOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reminderScanOutcomes.WithLabelValues(outcome).Inc()
}

// RecordWebhookForwardStatus increments the forward-status counter ("sent"
// or "failed").
func (m *Metrics) RecordWebhookForwardStatus(status string) {
	if m == nil {
		return
	}
	m.webhookForwardStatus.WithLabelValues(status).Inc()
}

// RecordAvailabilityLookup increments the availability-lookup counter
// ("hit", "miss", "fallback", "error").
func (m *Metrics) RecordAvailabilityLookup(outcome string) {
	if m == nil {
		return
	}
	m.availabilityLookups.WithLabelValues(outcome).Inc()
}

// RecordDutyAssignment increments the duty-assignment counter for a roster
// ("daily" or "pod").
func (m *Metrics) RecordDutyAssignment(roster string) {
	if m == nil {
		return
	}
	m.dutyAssignments.WithLabelValues(roster).Inc()
}
