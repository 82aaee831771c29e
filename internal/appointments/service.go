package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

const eventSource = "appointments"

var ErrNotCancellable = errors.New("appointments: appointment cannot be cancelled")

// Backend is the part of the API the service calls.
type Backend interface {
	ListAppointments(ctx context.Context) ([]backend.Appointment, error)
	CancelAppointment(ctx context.Context, id backend.ID, reason string) error
}

// Service owns the caller's appointment list.
type Service struct {
	api     Backend
	overlay *Overlay
	bus     *events.Bus
	logger  *logging.Logger
}

func NewService(api Backend, bus *events.Bus, logger *logging.Logger) *Service {
	if api == nil {
		panic("appointments: backend required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{api: api, overlay: NewOverlay(), bus: bus, logger: logger}
}

// Overlay exposes the underlying overlay.
func (s *Service) Overlay() *Overlay { return s.overlay }

// Appointments is the current view, optimistic changes included.
func (s *Service) Appointments() []backend.Appointment { return s.overlay.View() }

// Load refetches the list and reconciles it with pending changes.
func (s *Service) Load(ctx context.Context) error {
	list, err := s.api.ListAppointments(ctx)
	if err != nil {
		return fmt.Errorf("appointments: load: %w", err)
	}
	s.overlay.Reconcile(list)
	return nil
}

// Cancel shows the appointment as cancelled right away, then asks the
// server. A rejected cancel rolls back only this change.
func (s *Service) Cancel(ctx context.Context, id backend.ID, reason string) error {
	appt, ok := s.overlay.Get(id)
	if !ok {
		return fmt.Errorf("appointments: appointment %s not loaded", id)
	}
	if appt.Status != StatusPending && appt.Status != StatusApproved {
		return fmt.Errorf("%w: status %s", ErrNotCancellable, appt.Status)
	}
	mutation, err := s.overlay.Apply(id, StatusCancelled)
	if err != nil {
		return err
	}

	if err := s.api.CancelAppointment(ctx, id, reason); err != nil {
		if rbErr := s.overlay.Rollback(mutation); rbErr != nil {
			s.logger.Error("appointments: rollback failed", "appointment_id", id, "mutation_id", mutation, "error", rbErr)
		}
		s.logger.Warn("appointments: cancel rejected", "appointment_id", id, "error", err)
		return fmt.Errorf("appointments: cancel %s: %w", id, err)
	}
	if err := s.overlay.Confirm(mutation); err != nil {
		s.logger.Warn("appointments: confirm mutation", "mutation_id", mutation, "error", err)
	}
	s.logger.Info("appointments: cancelled", "appointment_id", id, "date", appt.DateKey())

	s.bus.Publish(ctx, events.Event{Topic: events.AppointmentsChanged, Date: appt.DateKey(), Source: eventSource})
	s.bus.Publish(ctx, events.Event{Topic: events.SlotCapacitiesChanged, Date: appt.DateKey(), Source: eventSource})

	if err := s.Load(ctx); err != nil {
		s.logger.Warn("appointments: refetch after cancel failed", "error", err)
	}
	return nil
}

// Watch reloads when another component changes appointments.
func (s *Service) Watch(bus *events.Bus) func() {
	return bus.Subscribe(events.AppointmentsChanged, func(ctx context.Context, ev events.Event) {
		if ev.Source == eventSource {
			return
		}
		if err := s.Load(ctx); err != nil {
			s.logger.Warn("appointments: reload on change failed", "source", ev.Source, "error", err)
		}
	})
}
