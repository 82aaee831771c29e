package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/notary-booking/internal/observability/metrics"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "test-token", logging.Discard(), opts...)
}

func TestClient_ListUnavailableDates_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/unavailable-dates" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected X-Request-ID header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":1,"date":"2025-03-10T00:00:00.000000Z","reason":"Holiday","is_recurring":false},
			{"id":"2","reason":null,"is_recurring":1,"recurring_days":"[\"Monday\",\"friday\"]"}
		]}`))
	})

	dates, err := client.ListUnavailableDates(context.Background())
	if err != nil {
		t.Fatalf("ListUnavailableDates() error = %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("len(dates) = %d, want 2", len(dates))
	}
	if dates[0].ID != "1" || dates[0].DateKey() != "2025-03-10" {
		t.Fatalf("first date = %+v", dates[0])
	}
	if !bool(dates[1].IsRecurring) || !dates[1].RecurringDays.Contains("monday") || !dates[1].RecurringDays.Contains("Friday") {
		t.Fatalf("recurring entry = %+v", dates[1])
	}
}

func TestClient_GetUserLimit_PathAndDecode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appointment-settings/user-limit/42/2025-03-10" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"limit":2,"used":2,"remaining":0,"has_reached_limit":true,
			"message":"You have reached your daily limit","bookings_today":[{"time":"09:00","service":"Notary"}],
			"next_available_time":"2025-03-11 08:00"}}`))
	})

	info, err := client.GetUserLimit(context.Background(), "42", "2025-03-10")
	if err != nil {
		t.Fatalf("GetUserLimit() error = %v", err)
	}
	if !info.HasReachedLimit || info.Limit == nil || *info.Limit != 2 || info.Remaining == nil || *info.Remaining != 0 {
		t.Fatalf("info = %+v", info)
	}
	if info.Date != "2025-03-10" {
		t.Fatalf("date = %q, want request date filled in", info.Date)
	}
	if len(info.BookingsToday) != 1 || info.BookingsToday[0].Service != "Notary" {
		t.Fatalf("bookings = %+v", info.BookingsToday)
	}
}

func TestClient_CreateAppointment_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/appointments" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		var req AppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.AppointmentDate != "2025-03-10" || req.AppointmentTime != "10:00" {
			t.Fatalf("request = %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"appointment":{"id":7,"appointment_date":"2025-03-10","appointment_time":"10:00:00","status":"pending"}}`))
	})

	appt, err := client.CreateAppointment(context.Background(), AppointmentRequest{
		AppointmentDate: "2025-03-10",
		AppointmentTime: "10:00",
		Type:            "Document Notarization",
	})
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if appt.ID != "7" || appt.Status != "pending" {
		t.Fatalf("appointment = %+v", appt)
	}
}

func TestClient_CreateAppointment_LimitConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"has_reached_limit":true,"next_available_time":"2025-03-11","limit":2,"message":"Daily limit reached"}`))
	})

	_, err := client.CreateAppointment(context.Background(), AppointmentRequest{AppointmentDate: "2025-03-10", AppointmentTime: "10:00", Type: "x"})
	var conflict *LimitConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *LimitConflict", err)
	}
	if conflict.Limit == nil || *conflict.Limit != 2 || conflict.NextAvailableTime != "2025-03-11" {
		t.Fatalf("conflict = %+v", conflict)
	}
}

func TestClient_CreateAppointment_SlotFull(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"message":"This time slot is fully booked"}`))
	})

	_, err := client.CreateAppointment(context.Background(), AppointmentRequest{AppointmentDate: "2025-03-10", AppointmentTime: "10:00", Type: "x"})
	if !errors.Is(err, ErrSlotFull) {
		t.Fatalf("error = %v, want ErrSlotFull", err)
	}
}

func TestClient_CreateAppointment_ValidationErrorUnclassified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The type field is required.","errors":{"type":["required"]}}`))
	})

	_, err := client.CreateAppointment(context.Background(), AppointmentRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if errors.Is(err, ErrSlotFull) {
		t.Fatal("validation error must not be classified as slot full")
	}
	if apiErr.Message != "The type field is required." {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestClient_SuggestAlternatives_Normalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		if payload["preferred_date"] != "2025-03-10" || payload["days_ahead"] != float64(14) {
			t.Fatalf("payload = %v", payload)
		}
		_, _ = w.Write([]byte(`{"alternatives":[
			{"date":"2025-03-11","first_available_time":"09:30:00","available_slots":4},
			{"date":"2025-03-12","available_times":["13:00","13:30"],"available_slots_count":2},
			{"date":"2025-03-13","available_slots":["14:00:00"]},
			{"date":"2025-03-14"}
		]}`))
	})

	alts, err := client.SuggestAlternatives(context.Background(), "2025-03-10", 14)
	if err != nil {
		t.Fatalf("SuggestAlternatives() error = %v", err)
	}
	want := []Alternative{
		{Date: "2025-03-11", Time: "09:30", AvailableSlots: 4},
		{Date: "2025-03-12", Time: "13:00", AvailableSlots: 2},
		{Date: "2025-03-13", Time: "14:00", AvailableSlots: 1},
	}
	if len(alts) != len(want) {
		t.Fatalf("alternatives = %+v", alts)
	}
	for i := range want {
		if alts[i] != want[i] {
			t.Fatalf("alternative[%d] = %+v, want %+v", i, alts[i], want[i])
		}
	}
}

func TestClient_SuggestAlternatives_EmptyIsNonNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"alternatives":[]}`))
	})

	alts, err := client.SuggestAlternatives(context.Background(), "2025-03-10", 14)
	if err != nil {
		t.Fatalf("SuggestAlternatives() error = %v", err)
	}
	if alts == nil {
		t.Fatal("alternatives should be an empty slice, not nil")
	}
}

func TestClient_AdminBlackoutEndpoints(t *testing.T) {
	var createBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin/unavailable-dates/affected":
			_, _ = w.Write([]byte(`{"data":[{"id":3,"appointment_date":"2025-03-10","appointment_time":"09:00"}]}`))
		case "/api/admin/unavailable-dates":
			_ = json.NewDecoder(r.Body).Decode(&createBody)
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":9,"date":"2025-03-10","reason":"Closed"}}`))
		case "/api/admin/cancel-bulk-appointments":
			_, _ = w.Write([]byte(`{"success":true,"message":"Cancelled 1 appointment"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()
	proposal := BlackoutProposal{Date: "2025-03-10", Reason: "Closed", AllDay: true}

	affected, err := client.AffectedAppointments(ctx, proposal)
	if err != nil || len(affected) != 1 || affected[0].ID != "3" {
		t.Fatalf("AffectedAppointments() = %+v, %v", affected, err)
	}
	created, err := client.CreateUnavailableDate(ctx, proposal, []ID{"3"})
	if err != nil || created.ID != "9" {
		t.Fatalf("CreateUnavailableDate() = %+v, %v", created, err)
	}
	ids, ok := createBody["affected_appointment_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != float64(3) {
		t.Fatalf("affected_appointment_ids = %v", createBody["affected_appointment_ids"])
	}
	if createBody["date"] != "2025-03-10" {
		t.Fatalf("create body = %v", createBody)
	}
	err = client.CancelBulkAppointments(ctx, BulkCancelRequest{
		AppointmentIDs:     []ID{"3"},
		CancellationReason: "Office closed",
		MessageType:        MessageGroup,
		UnavailableDate:    "2025-03-10",
	})
	if err != nil {
		t.Fatalf("CancelBulkAppointments() error = %v", err)
	}
}

func TestClient_CancelAppointment_SuccessFalse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/appointments/5/cancel" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":false,"message":"Already cancelled"}`))
	})

	err := client.CancelAppointment(context.Background(), "5", "")
	if !errors.Is(err, ErrUnexpectedShape) {
		t.Fatalf("error = %v, want ErrUnexpectedShape", err)
	}
}

func TestClient_HTTPErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream failed", http.StatusBadGateway)
	})

	_, err := client.DashboardStats(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if !apiErr.Transient() || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[`))
	})

	if _, err := client.ListServices(context.Background()); err == nil {
		t.Fatal("expected JSON decode error, got nil")
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.ListUnavailableDates(ctx); err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, WithMetrics(m), WithRateLimit(100, 1))

	if _, err := client.ListUnavailableDates(context.Background()); err != nil {
		t.Fatalf("ListUnavailableDates() error = %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "notary_backend_requests_total" {
			found = len(f.GetMetric()) == 1
		}
	}
	if !found {
		t.Fatal("expected one request counter sample")
	}
}
