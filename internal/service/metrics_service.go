package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the scheduling domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	slotsGenerated   prometheus.Counter
	bookingConflicts prometheus.Counter
	checkoutSessions prometheus.Counter
	releasedHolds    prometheus.Counter
	orphanedPayments prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	slotsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slots_generated_total",
		Help: "Total slots materialized from provider availability",
	})

	bookingConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_conflicts_total",
		Help: "Total reservation attempts rejected because the slot was taken",
	})

	checkoutSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Total checkout sessions opened with the payment gateway",
	})

	releasedHolds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_released_total",
		Help: "Total unpaid holds released after payment failure or expiry",
	})

	orphanedPayments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_orphaned_total",
		Help: "Total successful payments with no claimable booking, pending refund",
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		requestDuration,
		requestTotal,
		slotsGenerated,
		bookingConflicts,
		checkoutSessions,
		releasedHolds,
		orphanedPayments,
	)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		slotsGenerated:   slotsGenerated,
		bookingConflicts: bookingConflicts,
		checkoutSessions: checkoutSessions,
		releasedHolds:    releasedHolds,
		orphanedPayments: orphanedPayments,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// AddSlotsGenerated records freshly materialized slots.
func (s *MetricsService) AddSlotsGenerated(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.slotsGenerated.Add(float64(n))
}

// IncBookingConflict records a reservation that lost the race for its slot.
func (s *MetricsService) IncBookingConflict() {
	if s == nil {
		return
	}
	s.bookingConflicts.Inc()
}

// IncCheckoutSession records a checkout session opened with the gateway.
func (s *MetricsService) IncCheckoutSession() {
	if s == nil {
		return
	}
	s.checkoutSessions.Inc()
}

// AddReleasedHolds records unpaid holds released back to open.
func (s *MetricsService) AddReleasedHolds(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.releasedHolds.Add(float64(n))
}

// IncOrphanedPayment records a paid session that could not be matched to a
// booking and needs a refund.
func (s *MetricsService) IncOrphanedPayment() {
	if s == nil {
		return
	}
	s.orphanedPayments.Inc()
}
