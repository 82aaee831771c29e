// Package blackout walks an admin through creating an unavailable date
// while accounting for the appointments it would hit.
package blackout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/internal/identity"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

var (
	ErrNotAdmin         = errors.New("blackout: admin role required")
	ErrInvalidProposal  = errors.New("blackout: invalid proposal")
	ErrWrongStep        = errors.New("blackout: action not allowed at this step")
	ErrNothingSelected  = errors.New("blackout: no appointments selected")
	ErrReasonRequired   = errors.New("blackout: cancellation reason required")
	ErrUnknownMessaging = errors.New("blackout: unknown notification mode")
)

// Step is the wizard's position.
type Step int

const (
	// StepPropose: editing the candidate date.
	StepPropose Step = iota
	// StepPreview: affected appointments shown, waiting for proceed or cancel-selected.
	StepPreview
	// StepBulkCancel: picking which affected appointments to cancel.
	StepBulkCancel
	// StepDone: the unavailable date exists.
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepPreview:
		return "preview"
	case StepBulkCancel:
		return "bulk_cancel"
	case StepDone:
		return "done"
	default:
		return "propose"
	}
}

// Backend is the admin API the wizard drives.
type Backend interface {
	AffectedAppointments(ctx context.Context, proposal backend.BlackoutProposal) ([]backend.Appointment, error)
	CreateUnavailableDate(ctx context.Context, proposal backend.BlackoutProposal, affectedIDs []backend.ID) (*backend.UnavailableDate, error)
	CancelBulkAppointments(ctx context.Context, req backend.BulkCancelRequest) error
}

// IdentitySource yields the signed-in user.
type IdentitySource interface {
	Current() (identity.Identity, bool)
}

// Wizard is one blackout-creation session. It is not safe for concurrent use.
type Wizard struct {
	api    Backend
	ids    IdentitySource
	bus    *events.Bus
	logger *logging.Logger

	session   string
	step      Step
	proposal  backend.BlackoutProposal
	affected  []backend.Appointment
	selected  map[backend.ID]bool
	cancelled []backend.ID
	created   *backend.UnavailableDate
	lastErr   error
}

// NewWizard starts a session at StepPropose. A nil ids skips the admin check.
func NewWizard(api Backend, ids IdentitySource, bus *events.Bus, logger *logging.Logger) *Wizard {
	if api == nil {
		panic("blackout: backend required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Wizard{api: api, ids: ids, bus: bus, logger: logger}
	w.Reset()
	return w
}

// Reset starts a new session.
func (w *Wizard) Reset() {
	w.session = uuid.NewString()
	w.step = StepPropose
	w.proposal = backend.BlackoutProposal{}
	w.affected = nil
	w.selected = make(map[backend.ID]bool)
	w.cancelled = nil
	w.created = nil
	w.lastErr = nil
}

func (w *Wizard) Session() string                    { return w.session }
func (w *Wizard) Step() Step                         { return w.step }
func (w *Wizard) Proposal() backend.BlackoutProposal { return w.proposal }
func (w *Wizard) Created() *backend.UnavailableDate  { return w.created }
func (w *Wizard) LastError() error                   { return w.lastErr }

// Affected returns the appointments the proposal overlaps.
func (w *Wizard) Affected() []backend.Appointment {
	return append([]backend.Appointment(nil), w.affected...)
}

// Cancelled returns the IDs removed by bulk cancellation.
func (w *Wizard) Cancelled() []backend.ID {
	return append([]backend.ID(nil), w.cancelled...)
}

// Selected returns the selected IDs in list order.
func (w *Wizard) Selected() []backend.ID {
	var out []backend.ID
	for _, a := range w.affected {
		if w.selected[a.ID] {
			out = append(out, a.ID)
		}
	}
	return out
}

// Propose records the draft and previews its impact. With nothing affected
// the unavailable date is created right away; otherwise the wizard stops at
// StepPreview.
func (w *Wizard) Propose(ctx context.Context, p backend.BlackoutProposal) error {
	if w.step != StepPropose {
		return fmt.Errorf("%w: propose from %s", ErrWrongStep, w.step)
	}
	if err := w.requireAdmin(); err != nil {
		return w.fail(err)
	}
	p, err := normalize(p)
	if err != nil {
		return w.fail(err)
	}
	w.proposal = p
	log := w.log()

	affected, err := w.api.AffectedAppointments(ctx, p)
	if err != nil {
		log.Warn("blackout: affected preview failed", "error", err)
		return w.fail(fmt.Errorf("blackout: preview affected appointments: %w", err))
	}
	w.affected = affected
	w.selected = make(map[backend.ID]bool)
	w.lastErr = nil

	if len(affected) > 0 {
		w.step = StepPreview
		log.Info("blackout: proposal overlaps appointments", "affected", len(affected))
		return nil
	}
	return w.create(ctx, nil)
}

// CanProceed reports whether Proceed is available.
func (w *Wizard) CanProceed() bool { return w.step == StepPreview }

// Proceed creates the unavailable date, handing every affected appointment
// to the backend's own rescheduling policy.
func (w *Wizard) Proceed(ctx context.Context) error {
	if w.step != StepPreview {
		return fmt.Errorf("%w: proceed from %s", ErrWrongStep, w.step)
	}
	return w.create(ctx, ids(w.affected))
}

// BeginCancelSelected opens bulk cancellation.
func (w *Wizard) BeginCancelSelected() error {
	if w.step != StepPreview {
		return fmt.Errorf("%w: cancel-selected from %s", ErrWrongStep, w.step)
	}
	w.step = StepBulkCancel
	return nil
}

// Back returns from bulk cancellation to the preview, keeping the selection.
func (w *Wizard) Back() error {
	if w.step != StepBulkCancel {
		return fmt.Errorf("%w: back from %s", ErrWrongStep, w.step)
	}
	w.step = StepPreview
	return nil
}

// ToggleSelected flips one affected appointment's selection.
func (w *Wizard) ToggleSelected(id backend.ID) error {
	if w.step != StepBulkCancel {
		return fmt.Errorf("%w: select from %s", ErrWrongStep, w.step)
	}
	for _, a := range w.affected {
		if a.ID == id {
			w.selected[id] = !w.selected[id]
			return nil
		}
	}
	return fmt.Errorf("blackout: appointment %s is not affected", id)
}

// SelectAll selects every affected appointment, or clears the selection if
// all are already selected.
func (w *Wizard) SelectAll() error {
	if w.step != StepBulkCancel {
		return fmt.Errorf("%w: select from %s", ErrWrongStep, w.step)
	}
	all := len(w.Selected()) == len(w.affected)
	w.selected = make(map[backend.ID]bool)
	if !all {
		for _, a := range w.affected {
			w.selected[a.ID] = true
		}
	}
	return nil
}

// CanCancelSelected reports whether CancelSelected may be attempted.
func (w *Wizard) CanCancelSelected() bool {
	return w.step == StepBulkCancel && len(w.Selected()) > 0
}

// CancelSelected cancels the selected appointments, notifying their owners
// per mode, then creates the unavailable date with whatever remains
// affected. If creation then fails the wizard returns to StepPreview with the
// remaining appointments so Proceed can retry it.
func (w *Wizard) CancelSelected(ctx context.Context, reason, mode string, includeReason bool) error {
	if w.step != StepBulkCancel {
		return fmt.Errorf("%w: cancel from %s", ErrWrongStep, w.step)
	}
	chosen := w.Selected()
	if len(chosen) == 0 {
		return w.fail(ErrNothingSelected)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return w.fail(ErrReasonRequired)
	}
	switch mode {
	case "":
		mode = backend.MessageIndividual
	case backend.MessageIndividual, backend.MessageGroup:
	default:
		return w.fail(fmt.Errorf("%w: %q", ErrUnknownMessaging, mode))
	}

	log := w.log()
	err := w.api.CancelBulkAppointments(ctx, backend.BulkCancelRequest{
		AppointmentIDs:         chosen,
		CancellationReason:     reason,
		MessageType:            mode,
		IncludeReasonInMessage: includeReason,
		UnavailableDate:        w.proposal.Date,
	})
	if err != nil {
		log.Warn("blackout: bulk cancel failed", "count", len(chosen), "error", err)
		return w.fail(fmt.Errorf("blackout: bulk cancel: %w", err))
	}
	log.Info("blackout: appointments cancelled", "count", len(chosen), "message_type", mode)

	w.cancelled = append(w.cancelled, chosen...)
	remaining := w.affected[:0:0]
	for _, a := range w.affected {
		if !w.selected[a.ID] {
			remaining = append(remaining, a)
		}
	}
	w.affected = remaining
	w.selected = make(map[backend.ID]bool)
	w.publish(ctx, events.AppointmentsChanged)

	if err := w.create(ctx, ids(remaining)); err != nil {
		w.step = StepPreview
		return err
	}
	return nil
}

func (w *Wizard) create(ctx context.Context, affected []backend.ID) error {
	created, err := w.api.CreateUnavailableDate(ctx, w.proposal, affected)
	if err != nil {
		w.log().Warn("blackout: create failed", "affected", len(affected), "error", err)
		return w.fail(fmt.Errorf("blackout: create unavailable date: %w", err))
	}
	w.created = created
	w.step = StepDone
	w.lastErr = nil
	w.log().Info("blackout: unavailable date created", "affected", len(affected))
	w.publish(ctx, events.UnavailableDatesChanged)
	return nil
}

func (w *Wizard) requireAdmin() error {
	if w.ids == nil {
		return nil
	}
	id, ok := w.ids.Current()
	if !ok || !id.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

func (w *Wizard) publish(ctx context.Context, topic events.Topic) {
	w.bus.Publish(ctx, events.Event{Topic: topic, Date: w.proposal.Date, Source: "blackout"})
}

func (w *Wizard) fail(err error) error {
	w.lastErr = err
	return err
}

func (w *Wizard) log() *logging.Logger {
	return w.logger.With("session", w.session, "date", w.proposal.Date)
}

func ids(list []backend.Appointment) []backend.ID {
	out := make([]backend.ID, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

var weekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

func normalize(p backend.BlackoutProposal) (backend.BlackoutProposal, error) {
	p.Reason = strings.TrimSpace(p.Reason)
	p.Date = strings.TrimSpace(p.Date)

	if p.IsRecurring {
		if len(p.RecurringDays) == 0 {
			return p, fmt.Errorf("%w: recurring blackout needs at least one weekday", ErrInvalidProposal)
		}
		days := make([]string, 0, len(p.RecurringDays))
		for _, d := range p.RecurringDays {
			d = strings.ToLower(strings.TrimSpace(d))
			if !weekdays[d] {
				return p, fmt.Errorf("%w: unknown weekday %q", ErrInvalidProposal, d)
			}
			days = append(days, d)
		}
		p.RecurringDays = days
	} else {
		p.RecurringDays = nil
		if p.Date == "" {
			return p, fmt.Errorf("%w: date required", ErrInvalidProposal)
		}
	}
	if p.Date != "" {
		if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
			return p, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidProposal, p.Date)
		}
	}

	if p.AllDay || (p.StartTime == "" && p.EndTime == "") {
		p.AllDay = true
		p.StartTime, p.EndTime = "", ""
		return p, nil
	}
	start, end := backend.NormalizeClock(p.StartTime), backend.NormalizeClock(p.EndTime)
	if start == "" || end == "" {
		return p, fmt.Errorf("%w: start and end time required unless all day", ErrInvalidProposal)
	}
	if start >= end {
		return p, fmt.Errorf("%w: start time must be before end time", ErrInvalidProposal)
	}
	p.StartTime, p.EndTime = start, end
	return p, nil
}
