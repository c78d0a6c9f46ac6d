package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CalendarMetrics counts core computations and booking outcomes.
type CalendarMetrics struct {
	computations *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	bookings     *prometheus.CounterVec
}

func NewCalendarMetrics(reg prometheus.Registerer) *CalendarMetrics {
	m := &CalendarMetrics{
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "computations_total",
			Help:      "Total core computations by component",
		}, []string{"component"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "computation_seconds",
			Help:      "Latency of core computations including data fetch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.computations, m.latency, m.bookings)
	return m
}

func (m *CalendarMetrics) ObserveComputation(component string, started time.Time) {
	if m == nil {
		return
	}
	m.computations.WithLabelValues(component).Inc()
	m.latency.WithLabelValues(component).Observe(time.Since(started).Seconds())
}

func (m *CalendarMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}
