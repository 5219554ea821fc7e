package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Allocation outcomes.
const (
	AllocationAccepted = "accepted"
	AllocationClamped  = "clamped"
	AllocationRejected = "rejected"
)

// ProductionMetrics records allocation, issuance and requisition activity.
type ProductionMetrics struct {
	allocations   *prometheus.CounterVec
	issuanceClamp prometheus.Counter
	transitions   *prometheus.CounterVec
	submission    *prometheus.HistogramVec
	inFlight      *prometheus.CounterVec
}

// NewProductionMetrics registers the production metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewProductionMetrics(reg prometheus.Registerer) *ProductionMetrics {
	if reg == nil {
		return &ProductionMetrics{}
	}
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "card_allocation_total",
		Help: "Production card allocation submissions by outcome.",
	}, []string{"outcome"})
	issuanceClamp := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "material_issuance_clamped_total",
		Help: "Issued quantities clamped to the issuable maximum.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "requisition_status_transitions_total",
		Help: "Material requisition status transitions.",
	}, []string{"from", "to"})
	submission := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "submission_duration_seconds",
		Help:    "Duration of card and requisition submissions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	inFlight := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submission_in_flight_rejections_total",
		Help: "Submissions rejected because another one held the entity lock.",
	}, []string{"entity"})
	reg.MustRegister(allocations, issuanceClamp, transitions, submission, inFlight)
	return &ProductionMetrics{
		allocations:   allocations,
		issuanceClamp: issuanceClamp,
		transitions:   transitions,
		submission:    submission,
		inFlight:      inFlight,
	}
}

func (m *ProductionMetrics) IncAllocation(outcome string) {
	if m == nil || m.allocations == nil {
		return
	}
	m.allocations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ProductionMetrics) IncIssuanceClamped(n int) {
	if m == nil || m.issuanceClamp == nil || n <= 0 {
		return
	}
	m.issuanceClamp.Add(float64(n))
}

func (m *ProductionMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *ProductionMetrics) ObserveSubmission(operation string, duration time.Duration) {
	if m == nil || m.submission == nil {
		return
	}
	m.submission.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func (m *ProductionMetrics) IncInFlight(entity string) {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.WithLabelValues(normalizeLabel(entity)).Inc()
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
