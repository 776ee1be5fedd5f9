package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "torch_portal"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published by type.",
		},
		[]string{"type"},
	)

	bookingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Booking submissions rejected by reason.",
		},
		[]string{"reason"},
	)

	hoursBooked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hours_booked_total",
			Help:      "Studio hours booked by tier.",
		},
		[]string{"tier"},
	)

	providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_provider_errors_total",
			Help:      "Payment provider call failures by operation.",
		},
		[]string{"operation"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, events, bookingRejections, hoursBooked, providerErrors)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncEvent(eventType string) {
	events.WithLabelValues(eventType).Inc()
}

func IncBookingRejection(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

func AddHoursBooked(tier string, hours int) {
	hoursBooked.WithLabelValues(tier).Add(float64(hours))
}

func IncProviderError(operation string) {
	providerErrors.WithLabelValues(operation).Inc()
}
