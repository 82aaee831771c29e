package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics exposes counters/histograms for backend calls, booking
// outcomes and the dashboard stats poller.
type ClientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	bookingOutcomes *prometheus.CounterVec
	pollerDegraded  prometheus.Gauge
	pollerFailures  prometheus.Gauge
}

func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total backend API requests by endpoint and status code",
		}, []string{"endpoint", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notary",
			Subsystem: "backend",
			Name:      "request_latency_seconds",
			Help:      "Latency of backend API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		pollerDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notary",
			Subsystem: "dashboard",
			Name:      "poller_degraded",
			Help:      "1 when the stats poller stopped after repeated failures",
		}),
		pollerFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notary",
			Subsystem: "dashboard",
			Name:      "poller_consecutive_failures",
			Help:      "Consecutive failed stats polls",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.bookingOutcomes, m.pollerDegraded, m.pollerFailures)
	return m
}

// ObserveRequest records one backend call. status 0 means the request never
// got a response.
func (m *ClientMetrics) ObserveRequest(endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(endpoint, label).Inc()
	m.requestLatency.WithLabelValues(endpoint).Observe(seconds)
}

func (m *ClientMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(outcome).Inc()
}

func (m *ClientMetrics) SetPollerState(degraded bool, failures int) {
	if m == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	m.pollerDegraded.Set(v)
	m.pollerFailures.Set(float64(failures))
}
