package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnexpectedShape means a response body matched none of the envelopes an endpoint accepts.
	ErrUnexpectedShape = errors.New("backend: unexpected response shape")
	// ErrSlotFull means the requested slot is inside business hours but has no capacity left.
	ErrSlotFull = errors.New("backend: time slot is fully booked")
)

// APIError is a non-2xx response.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
	Body     []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Endpoint, e.Status)
}

// Transient reports whether the failure is worth retrying later (5xx, 429).
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// LimitConflict is the 422 body returned when the user's daily limit blocks a booking.
type LimitConflict struct {
	HasReachedLimit   bool   `json:"has_reached_limit"`
	NextAvailableTime string `json:"next_available_time,omitempty"`
	Limit             *int   `json:"limit"`
	Message           string `json:"message"`
}

func (e *LimitConflict) Error() string {
	if e.Message != "" {
		return "daily booking limit reached: " + e.Message
	}
	return "daily booking limit reached"
}

type errorBody struct {
	Success         *bool  `json:"success"`
	Message         string `json:"message"`
	Error           string `json:"error"`
	HasReachedLimit *bool  `json:"has_reached_limit"`
	SlotFull        bool   `json:"slot_full"`
	IsFullyBooked   bool   `json:"is_fully_booked"`
}

func parseErrorBody(body []byte) errorBody {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Message == "" {
		eb.Message = eb.Error
	}
	return eb
}

var capacityPhrases = []string{"fully booked", "no available slots", "slot is full", "no longer available"}

// classifyBookingError turns a create-appointment failure into a
// *LimitConflict, an error wrapping ErrSlotFull, or the original error.
func classifyBookingError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	eb := parseErrorBody(apiErr.Body)
	if apiErr.Status == http.StatusUnprocessableEntity && eb.HasReachedLimit != nil && *eb.HasReachedLimit {
		var conflict LimitConflict
		if jsonErr := json.Unmarshal(apiErr.Body, &conflict); jsonErr == nil {
			return &conflict
		}
		return &LimitConflict{HasReachedLimit: true, Message: eb.Message}
	}
	if apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusUnprocessableEntity {
		msg := strings.ToLower(eb.Message)
		full := eb.SlotFull || eb.IsFullyBooked || apiErr.Status == http.StatusConflict
		for _, phrase := range capacityPhrases {
			if strings.Contains(msg, phrase) {
				full = true
				break
			}
		}
		if full {
			return fmt.Errorf("%w: %s", ErrSlotFull, apiErr.Message)
		}
	}
	return err
}
