package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/wolfman30/notary-booking/internal/observability/metrics"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 15 * time.Second
	maxLoggedBody  = 300
)

var backendTracer trace.Tracer = otel.Tracer("notary.internal.backend")

// Client wraps the scheduling REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	metrics    *metrics.ClientMetrics
	logger     *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outbound requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a scheduling API client.
func NewClient(baseURL, token string, logger *logging.Logger, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the bearer token the client authenticates with.
func (c *Client) Token() string { return c.token }

// do sends one request and returns the raw body of a 2xx response. Non-2xx
// responses come back as *APIError.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body any) ([]byte, error) {
	ctx, span := backendTracer.Start(ctx, "backend."+endpoint)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", endpoint, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", endpoint, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(endpoint, 0, time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "http request failed")
		return nil, fmt.Errorf("%s: http request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(endpoint, resp.StatusCode, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > maxLoggedBody {
			msg = msg[:maxLoggedBody]
		}
		c.logger.Warn("backend API non-2xx response",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"path", path,
			"request_id", reqID,
			"body", msg,
		)
		span.SetStatus(codes.Error, resp.Status)
		return nil, &APIError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  parseErrorBody(respBody).Message,
			Body:     respBody,
		}
	}
	return respBody, nil
}

// ListUnavailableDates returns every admin blackout entry.
func (c *Client) ListUnavailableDates(ctx context.Context) ([]UnavailableDate, error) {
	body, err := c.do(ctx, envUnavailableDates.endpoint, http.MethodGet, "/api/unavailable-dates", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[UnavailableDate](envUnavailableDates, body)
}

// GetUserLimit returns the user's booking quota for a YYYY-MM-DD date.
func (c *Client) GetUserLimit(ctx context.Context, userID, date string) (*DailyLimitInfo, error) {
	path := fmt.Sprintf("/api/appointment-settings/user-limit/%s/%s", url.PathEscape(userID), url.PathEscape(date))
	body, err := c.do(ctx, envUserLimit.endpoint, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	info, err := decodeObject[DailyLimitInfo](envUserLimit, body)
	if err != nil {
		return nil, err
	}
	if info.Date == "" {
		info.Date = date
	}
	return info, nil
}

// CreateAppointment submits a booking. A daily-limit rejection comes back
// as *LimitConflict and a capacity rejection wraps ErrSlotFull.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error) {
	body, err := c.do(ctx, envCreateAppt.endpoint, http.MethodPost, "/api/appointments", req)
	if err != nil {
		return nil, classifyBookingError(err)
	}
	return decodeObject[Appointment](envCreateAppt, body)
}

// ListAppointments returns the caller's appointments.
func (c *Client) ListAppointments(ctx context.Context) ([]Appointment, error) {
	body, err := c.do(ctx, envListAppts.endpoint, http.MethodGet, "/api/appointments", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Appointment](envListAppts, body)
}

// SuggestAlternatives asks for open slots from preferredDate over daysAhead days.
func (c *Client) SuggestAlternatives(ctx context.Context, preferredDate string, daysAhead int) ([]Alternative, error) {
	payload := map[string]any{
		"preferred_date": preferredDate,
		"days_ahead":     daysAhead,
	}
	body, err := c.do(ctx, envSuggest.endpoint, http.MethodPost, "/api/appointments/suggest-alternative", payload)
	if err != nil {
		return nil, err
	}
	raw, err := decodeList[rawAlternative](envSuggest, body)
	if err != nil {
		return nil, err
	}
	return normalizeAlternatives(raw), nil
}

// CancelAppointment cancels one appointment owned by the caller.
func (c *Client) CancelAppointment(ctx context.Context, id ID, reason string) error {
	path := fmt.Sprintf("/api/appointments/%s/cancel", url.PathEscape(string(id)))
	var payload any
	if strings.TrimSpace(reason) != "" {
		payload = map[string]string{"cancellation_reason": reason}
	}
	body, err := c.do(ctx, envCancelAppt.endpoint, http.MethodPut, path, payload)
	if err != nil {
		return err
	}
	return decodeAck(envCancelAppt, body)
}

// AffectedAppointments lists existing appointments that overlap a proposed blackout.
func (c *Client) AffectedAppointments(ctx context.Context, proposal BlackoutProposal) ([]Appointment, error) {
	body, err := c.do(ctx, envAffected.endpoint, http.MethodPost, "/api/admin/unavailable-dates/affected", proposal)
	if err != nil {
		return nil, err
	}
	return decodeList[Appointment](envAffected, body)
}

type createBlackoutRequest struct {
	BlackoutProposal
	AffectedAppointmentIDs []ID `json:"affected_appointment_ids,omitempty"`
}

// CreateUnavailableDate creates a blackout, passing along the appointments
// the admin acknowledged as affected.
func (c *Client) CreateUnavailableDate(ctx context.Context, proposal BlackoutProposal, affectedIDs []ID) (*UnavailableDate, error) {
	req := createBlackoutRequest{BlackoutProposal: proposal, AffectedAppointmentIDs: affectedIDs}
	body, err := c.do(ctx, envCreateBlackout.endpoint, http.MethodPost, "/api/admin/unavailable-dates", req)
	if err != nil {
		return nil, err
	}
	return decodeObject[UnavailableDate](envCreateBlackout, body)
}

// CancelBulkAppointments cancels several appointments and notifies their owners.
func (c *Client) CancelBulkAppointments(ctx context.Context, req BulkCancelRequest) error {
	body, err := c.do(ctx, envBulkCancel.endpoint, http.MethodPost, "/api/admin/cancel-bulk-appointments", req)
	if err != nil {
		return err
	}
	return decodeAck(envBulkCancel, body)
}

// DashboardStats returns the admin dashboard aggregate counts.
func (c *Client) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	body, err := c.do(ctx, envDashboardStats.endpoint, http.MethodGet, "/api/admin/dashboard/stats", nil)
	if err != nil {
		return nil, err
	}
	return decodeObject[DashboardStats](envDashboardStats, body)
}

// ListServices returns the bookable services.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	body, err := c.do(ctx, envServices.endpoint, http.MethodGet, "/api/services", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Service](envServices, body)
}
