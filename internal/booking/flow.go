// Package booking drives one appointment-booking session: pick a day, pick
// a slot, submit, and fall back to suggested alternatives on conflict.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/notary-booking/internal/availability"
	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/internal/limits"
	"github.com/wolfman30/notary-booking/internal/observability/metrics"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

// DefaultDaysAhead is the suggestion lookahead window.
const DefaultDaysAhead = 14

// State is where the flow is in the booking lifecycle.
type State int

const (
	Idle State = iota
	DateSelected
	TimeSelected
	Submitting
	Success
	Rejected
)

func (s State) String() string {
	switch s {
	case DateSelected:
		return "date_selected"
	case TimeSelected:
		return "time_selected"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	default:
		return "idle"
	}
}

// Backend is the part of the API the flow calls.
type Backend interface {
	CreateAppointment(ctx context.Context, req backend.AppointmentRequest) (*backend.Appointment, error)
	SuggestAlternatives(ctx context.Context, preferredDate string, daysAhead int) ([]backend.Alternative, error)
	ListAppointments(ctx context.Context) ([]backend.Appointment, error)
}

// DateOracle explains why a day cannot be booked ("" when it can).
type DateOracle interface {
	UnavailableReason(t time.Time) string
}

// LimitGate is the daily-limit guard as the flow sees it.
type LimitGate interface {
	SetSelectedDate(date string)
	Check(ctx context.Context, date string) (limits.Snapshot, error)
	Snapshot(date string) limits.Snapshot
	Decide(date string) limits.Decision
	Merge(date string, conflict *backend.LimitConflict) limits.Snapshot
}

// Draft is the in-progress appointment. It lives only as long as the flow
// session.
type Draft struct {
	AppointmentDate   string
	AppointmentTime   string
	Type              string
	Notes             string
	CustomServiceType string
	ServiceID         backend.ID
}

// Request converts the draft to the API body.
func (d Draft) Request() backend.AppointmentRequest {
	return backend.AppointmentRequest{
		AppointmentDate:   d.AppointmentDate,
		AppointmentTime:   d.AppointmentTime,
		Type:              d.Type,
		Notes:             strings.TrimSpace(d.Notes),
		ServiceID:         d.ServiceID,
		CustomServiceType: strings.TrimSpace(d.CustomServiceType),
	}
}

// Options tunes a Flow.
type Options struct {
	DaysAhead int
	Location  *time.Location
	Now       func() time.Time
	Bus       *events.Bus
	Metrics   *metrics.ClientMetrics
	// Services, when set, rejects drafts naming an unknown or inactive service.
	Services *ServiceCatalog
}

// Flow is one booking session. It is driven by a single caller and is not
// safe for concurrent use.
type Flow struct {
	api       Backend
	oracle    DateOracle
	guard     LimitGate
	bus       *events.Bus
	metrics   *metrics.ClientMetrics
	services  *ServiceCatalog
	logger    *logging.Logger
	loc       *time.Location
	now       func() time.Time
	daysAhead int

	state        State
	draft        Draft
	alternatives []backend.Alternative
	lastErr      error
	confirmation *backend.Appointment
	appointments []backend.Appointment
}

// NewFlow creates a booking session in the Idle state.
func NewFlow(api Backend, oracle DateOracle, guard LimitGate, opts Options, logger *logging.Logger) *Flow {
	if api == nil || oracle == nil || guard == nil {
		panic("booking: backend, oracle and limit guard are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = DefaultDaysAhead
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Flow{
		api:       api,
		oracle:    oracle,
		guard:     guard,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		services:  opts.Services,
		logger:    logger,
		loc:       opts.Location,
		now:       opts.Now,
		daysAhead: opts.DaysAhead,
	}
}

func (f *Flow) State() State                       { return f.state }
func (f *Flow) Draft() Draft                       { return f.draft }
func (f *Flow) LastError() error                   { return f.lastErr }
func (f *Flow) Confirmation() *backend.Appointment { return f.confirmation }

// Appointments returns the list refetched after the last successful booking.
func (f *Flow) Appointments() []backend.Appointment {
	return append([]backend.Appointment(nil), f.appointments...)
}

// Alternatives returns the current suggestions. It is never nil.
func (f *Flow) Alternatives() []backend.Alternative {
	out := make([]backend.Alternative, len(f.alternatives))
	copy(out, f.alternatives)
	return out
}

// LimitDecision is the quota gate for the drafted date.
func (f *Flow) LimitDecision() limits.Decision {
	return f.guard.Decide(f.draft.AppointmentDate)
}

func (f *Flow) today() string {
	return f.now().In(f.loc).Format(time.DateOnly)
}

// DateReason explains why day cannot be picked, or returns "".
func (f *Flow) DateReason(day time.Time) string {
	if reason := f.oracle.UnavailableReason(day); reason != "" {
		return reason
	}
	if availability.DateKey(day) < f.today() {
		return "Past dates cannot be booked"
	}
	return ""
}

// SelectDate picks a calendar day and runs the daily-limit check for it.
// Time selection stays disabled until that check is Fresh (or the guard
// fails open).
func (f *Flow) SelectDate(ctx context.Context, day time.Time) error {
	if f.state == Submitting {
		return fmt.Errorf("%w: submission in progress", ErrInvalidState)
	}
	if reason := f.DateReason(day); reason != "" {
		return f.fail(fmt.Errorf("%w: %s", ErrPolicyViolation, reason))
	}

	key := availability.DateKey(day)
	f.draft.AppointmentDate = key
	f.draft.AppointmentTime = ""
	f.alternatives = nil
	f.lastErr = nil
	f.state = DateSelected
	f.guard.SetSelectedDate(key)

	if _, err := f.guard.Check(ctx, key); err != nil {
		f.logger.Warn("booking: limit check for selected date failed", "date", key, "error", err)
	}
	return nil
}

// CanSelectTime reports whether the slot grid is enabled.
func (f *Flow) CanSelectTime() bool {
	switch f.state {
	case DateSelected, TimeSelected, Rejected:
	default:
		return false
	}
	return f.draft.AppointmentDate != "" && f.guard.Decide(f.draft.AppointmentDate).Allowed
}

// SelectTime picks a slot ("HH:MM") on the drafted date and prefetches
// alternatives in case the slot turns out to be full.
func (f *Flow) SelectTime(ctx context.Context, clock string) error {
	if f.draft.AppointmentDate == "" || f.state == Submitting || f.state == Idle || f.state == Success {
		return fmt.Errorf("%w: select a date first", ErrInvalidState)
	}
	c, err := availability.ParseClock(clock)
	if err != nil {
		return f.fail(fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if !availability.IsTimeSlotAvailable(c) {
		return f.fail(fmt.Errorf("%w: %s", ErrPolicyViolation, availability.TimeSlotInfo(c)))
	}
	if !c.OnGrid() {
		return f.fail(fmt.Errorf("%w: %s", ErrPolicyViolation, availability.NotOnSlotGrid))
	}
	if err := f.limitGate(); err != nil {
		return f.fail(err)
	}

	f.draft.AppointmentTime = c.String()
	f.lastErr = nil
	f.state = TimeSelected
	f.alternatives = f.suggest(ctx, f.draft.AppointmentDate)
	return nil
}

// SetDetails fills in the non-scheduling fields of the draft.
func (f *Flow) SetDetails(serviceType, notes, customServiceType string, serviceID backend.ID) {
	f.draft.Type = strings.TrimSpace(serviceType)
	f.draft.Notes = notes
	f.draft.CustomServiceType = customServiceType
	f.draft.ServiceID = serviceID
}

// Validate checks required fields locally.
func (f *Flow) Validate() error {
	var missing []string
	if f.draft.AppointmentDate == "" {
		missing = append(missing, "appointment date")
	}
	if f.draft.AppointmentTime == "" {
		missing = append(missing, "appointment time")
	}
	if f.draft.Type == "" {
		missing = append(missing, "service type")
	}
	if strings.EqualFold(f.draft.Type, "other") && strings.TrimSpace(f.draft.CustomServiceType) == "" {
		missing = append(missing, "custom service type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return f.services.Check(f.draft.ServiceID)
}

// CanSubmit reports whether Submit would reach the network.
func (f *Flow) CanSubmit() bool {
	if f.state != TimeSelected && f.state != Rejected {
		return false
	}
	return f.Validate() == nil && f.guard.Decide(f.draft.AppointmentDate).Allowed
}

// Submit sends the draft. Local gates fail without a network call.
func (f *Flow) Submit(ctx context.Context) (*backend.Appointment, error) {
	if f.state != TimeSelected && f.state != Rejected {
		return nil, fmt.Errorf("%w: nothing to submit", ErrInvalidState)
	}
	if err := f.Validate(); err != nil {
		return nil, f.fail(err)
	}
	if err := f.limitGate(); err != nil {
		f.metrics.ObserveBooking("blocked")
		return nil, f.fail(err)
	}

	date := f.draft.AppointmentDate
	f.state = Submitting
	appt, err := f.api.CreateAppointment(ctx, f.draft.Request())
	if err != nil {
		return nil, f.reject(ctx, date, err)
	}

	f.confirmation = appt
	f.draft = Draft{}
	f.alternatives = nil
	f.lastErr = nil
	f.state = Success
	f.metrics.ObserveBooking("success")
	f.logger.Info("booking: appointment created", "date", date, "appointment_id", appt.ID)

	if list, err := f.api.ListAppointments(ctx); err != nil {
		f.logger.Warn("booking: refetch appointments failed", "error", err)
	} else {
		f.appointments = list
	}
	if _, err := f.guard.Check(ctx, date); err != nil {
		f.logger.Warn("booking: limit re-check after booking failed", "date", date, "error", err)
	}
	f.publish(ctx, events.AppointmentsChanged, date)
	f.publish(ctx, events.SlotCapacitiesChanged, date)
	return appt, nil
}

func (f *Flow) reject(ctx context.Context, date string, err error) error {
	f.state = Rejected

	var conflict *backend.LimitConflict
	switch {
	case errors.As(err, &conflict):
		f.guard.Merge(date, conflict)
		f.metrics.ObserveBooking("quota_exceeded")
		return f.fail(fmt.Errorf("%w: %w", ErrQuotaExceeded, conflict))
	case errors.Is(err, backend.ErrSlotFull):
		f.alternatives = f.suggest(ctx, date)
		f.metrics.ObserveBooking("capacity_conflict")
		f.publish(ctx, events.SlotCapacitiesChanged, date)
		return f.fail(fmt.Errorf("%w: %w", ErrCapacityConflict, err))
	}
	f.metrics.ObserveBooking("error")
	f.logger.Error("booking: submit failed", "date", date, "error", err)
	return f.fail(fmt.Errorf("booking: submit: %w", err))
}

// ChooseAlternative moves the draft to suggestion i and lands in
// TimeSelected without a manual re-pick.
func (f *Flow) ChooseAlternative(ctx context.Context, i int) error {
	if f.state == Submitting {
		return fmt.Errorf("%w: submission in progress", ErrInvalidState)
	}
	if i < 0 || i >= len(f.alternatives) {
		return fmt.Errorf("%w: no alternative %d", ErrInvalidState, i)
	}
	alt := f.alternatives[i]
	day, err := availability.ParseDate(alt.Date, f.loc)
	if err != nil {
		return f.fail(fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if reason := f.DateReason(day); reason != "" {
		return f.fail(fmt.Errorf("%w: %s", ErrPolicyViolation, reason))
	}
	c, err := availability.ParseClock(alt.Time)
	if err != nil {
		return f.fail(fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if !availability.IsTimeSlotAvailable(c) {
		return f.fail(fmt.Errorf("%w: %s", ErrPolicyViolation, availability.TimeSlotInfo(c)))
	}
	if !c.OnGrid() {
		return f.fail(fmt.Errorf("%w: %s", ErrPolicyViolation, availability.NotOnSlotGrid))
	}

	f.draft.AppointmentDate = alt.Date
	f.draft.AppointmentTime = c.String()
	f.guard.SetSelectedDate(alt.Date)
	if f.guard.Snapshot(alt.Date).Freshness != limits.Fresh {
		if _, err := f.guard.Check(ctx, alt.Date); err != nil {
			f.logger.Warn("booking: limit check for alternative failed", "date", alt.Date, "error", err)
		}
	}
	f.lastErr = nil
	f.state = TimeSelected
	return nil
}

// Reset discards the draft, as when the booking dialog is closed.
func (f *Flow) Reset() {
	f.state = Idle
	f.draft = Draft{}
	f.alternatives = nil
	f.lastErr = nil
}

func (f *Flow) limitGate() error {
	d := f.guard.Decide(f.draft.AppointmentDate)
	if d.Allowed {
		if d.Warning != "" {
			f.logger.Warn("booking: proceeding without a confirmed daily limit", "date", f.draft.AppointmentDate, "warning", d.Warning)
		}
		return nil
	}
	if d.Freshness == limits.Fresh {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, d.Reason)
	}
	return fmt.Errorf("%w: %s", ErrLimitPending, d.Reason)
}

// suggest fetches alternatives; failures yield an empty (non-nil) list.
func (f *Flow) suggest(ctx context.Context, date string) []backend.Alternative {
	alts, err := f.api.SuggestAlternatives(ctx, date, f.daysAhead)
	if err != nil {
		f.logger.Warn("booking: suggest alternatives failed", "date", date, "error", err)
		return []backend.Alternative{}
	}
	if alts == nil {
		return []backend.Alternative{}
	}
	return alts
}

func (f *Flow) fail(err error) error {
	f.lastErr = err
	return err
}

func (f *Flow) publish(ctx context.Context, topic events.Topic, date string) {
	f.bus.Publish(ctx, events.Event{Topic: topic, Date: date, Source: "booking"})
}
