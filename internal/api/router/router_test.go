package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/dashboard"
	"github.com/wolfman30/notary-booking/internal/observability/metrics"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

type stubStats struct {
	err   error
	calls int
}

func (s *stubStats) DashboardStats(context.Context) (*backend.DashboardStats, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &backend.DashboardStats{TotalUsers: 4, TotalAppointments: 9}, nil
}

type stubDates struct{}

func (stubDates) Stale() bool { return false }
func (stubDates) LoadedAt() time.Time {
	return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
}

func newTestRouter(t *testing.T, src *stubStats) http.Handler {
	t.Helper()
	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)
	poller := dashboard.NewPoller(src, dashboard.Options{Metrics: m}, logger)

	return New(&Config{
		Logger:         logger,
		Poller:         poller,
		Dates:          stubDates{},
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RefreshRPS:     100,
		RefreshBurst:   10,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubStats{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
	if resp["dashboard"] != "healthy" {
		t.Errorf("expected healthy dashboard, got %v", resp["dashboard"])
	}
	if resp["unavailable_dates_loaded_at"] != "2025-03-10T09:00:00Z" {
		t.Errorf("unexpected loaded_at %v", resp["unavailable_dates_loaded_at"])
	}
}

func TestRouterDashboardRefresh(t *testing.T) {
	src := &stubStats{}
	router := newTestRouter(t, src)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if src.calls != 1 {
		t.Fatalf("expected one stats fetch, got %d", src.calls)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/", nil))
	var snap struct {
		State string                 `json:"state"`
		Stats backend.DashboardStats `json:"stats"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != "healthy" || snap.Stats.TotalAppointments != 9 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRouterDashboardRefreshFailure(t *testing.T) {
	router := newTestRouter(t, &stubStats{err: errors.New("backend down")})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "backend down") {
		t.Fatalf("expected last error in body, got %s", rr.Body.String())
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubStats{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "notary_dashboard_poller_degraded 0") {
		t.Fatalf("expected poller gauge in metrics output")
	}
}
