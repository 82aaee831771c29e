package booking

import (
	"errors"
	"strings"

	"github.com/wolfman30/notary-booking/internal/backend"
)

var (
	// ErrPolicyViolation: the date or time is outside what may be booked at all.
	ErrPolicyViolation = errors.New("booking: outside booking policy")
	// ErrQuotaExceeded: the user's daily limit for the date is used up.
	ErrQuotaExceeded = errors.New("booking: daily limit reached")
	// ErrLimitPending: the daily limit for the date is not confirmed yet.
	ErrLimitPending = errors.New("booking: daily limit not confirmed")
	// ErrCapacityConflict: the slot is valid but fully booked.
	ErrCapacityConflict = errors.New("booking: time slot fully booked")
	// ErrValidation: a required field is missing.
	ErrValidation = errors.New("booking: invalid appointment details")
	// ErrInvalidState: the action does not apply in the flow's current state.
	ErrInvalidState = errors.New("booking: action not allowed now")
)

const genericFailure = "Failed to book appointment. Please try again."

// Message turns a flow error into the text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var conflict *backend.LimitConflict
	switch {
	case errors.As(err, &conflict):
		if conflict.Message != "" {
			return conflict.Message
		}
		return "You have reached your daily booking limit."
	case errors.Is(err, ErrCapacityConflict):
		return "This time slot is fully booked. Please choose one of the suggested alternatives."
	case errors.Is(err, ErrPolicyViolation), errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrLimitPending), errors.Is(err, ErrValidation):
		return detail(err)
	case errors.Is(err, ErrInvalidState):
		return "Please select a date and time first."
	}
	return genericFailure
}

// detail returns the text after the sentinel prefix ("booking: x: detail").
func detail(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrPolicyViolation, ErrQuotaExceeded, ErrLimitPending, ErrValidation} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
