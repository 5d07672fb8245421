package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the availability and booking flows.
type BookingMetrics struct {
	bookingsTotal       *prometheus.CounterVec
	cancellationsTotal  *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	notificationsTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "bookings",
			Name:      "book_total",
			Help:      "Booking attempts by appointment kind and outcome",
		}, []string{"kind", "result"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "bookings",
			Name:      "cancel_total",
			Help:      "Cancellation attempts by outcome",
		}, []string{"result"}),
		cacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "availability",
			Name:      "cache_lookups_total",
			Help:      "Availability cache operations by operation and result",
		}, []string{"op", "result"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barber",
			Subsystem: "availability",
			Name:      "latency_seconds",
			Help:      "Latency of availability lookups",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barber",
			Subsystem: "notify",
			Name:      "dispatch_total",
			Help:      "Notification dispatch results",
		}, []string{"event_type", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.cancellationsTotal, m.cacheLookupsTotal, m.availabilityLatency, m.notificationsTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(kind, result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(kind, result).Inc()
}

func (m *BookingMetrics) ObserveCancel(result string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(result).Inc()
}

// ObserveCache records a cache operation; result is hit, miss, stored or error.
func (m *BookingMetrics) ObserveCache(op, result string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(op, result).Inc()
}

// ObserveAvailability records lookup latency; source is cache or store.
func (m *BookingMetrics) ObserveAvailability(source string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(source).Observe(seconds)
}

func (m *BookingMetrics) ObserveNotification(eventType, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(eventType, result).Inc()
}
