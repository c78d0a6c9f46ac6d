package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCalendarMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCalendarMetrics(reg)

	m.ObserveComputation("availability", time.Now())
	m.ObserveComputation("availability", time.Now())
	m.ObserveBooking("booked")
	m.ObserveBooking("conflict")
	m.ObserveBooking("conflict")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.computations.WithLabelValues("availability")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("conflict")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *CalendarMetrics
	assert.NotPanics(t, func() {
		m.ObserveComputation("layout", time.Now())
		m.ObserveBooking("booked")
	})
}
