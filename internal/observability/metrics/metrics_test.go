package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestClientMetricsObserve(t *testing.T) {
	m := NewClientMetrics(nil)
	m.ObserveRequest("unavailable_dates", 200, 0.05)
	m.ObserveBooking("success")
	m.SetPollerState(false, 0)
}

func TestClientMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	m.ObserveRequest("create_appointment", 422, 0.1)
	m.ObserveRequest("create_appointment", 0, 0.2)

	family := gather(t, reg, "notary_backend_requests_total")
	if len(family.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(family.GetMetric()))
	}
	statuses := map[string]bool{}
	for _, metric := range family.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "status" {
				statuses[label.GetValue()] = true
			}
		}
	}
	if !statuses["422"] || !statuses["error"] {
		t.Fatalf("unexpected status labels: %v", statuses)
	}
}

func TestClientMetricsPollerGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	m.SetPollerState(true, 3)

	degraded := gather(t, reg, "notary_dashboard_poller_degraded")
	if got := degraded.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Fatalf("degraded gauge = %v, want 1", got)
	}
	failures := gather(t, reg, "notary_dashboard_poller_consecutive_failures")
	if got := failures.GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Fatalf("failures gauge = %v, want 3", got)
	}
}

func TestClientMetricsNilSafe(t *testing.T) {
	var m *ClientMetrics
	m.ObserveRequest("x", 200, 0.1)
	m.ObserveBooking("rejected")
	m.SetPollerState(true, 1)
}
