// Package appointments keeps the caller's appointment list with optimistic
// status changes layered on top of the last server copy.
package appointments

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/notary-booking/internal/backend"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var ErrUnknownMutation = errors.New("appointments: unknown mutation")

// Patch is one optimistic status change awaiting the server.
type Patch struct {
	MutationID    string
	AppointmentID backend.ID
	Status        string
	Previous      string
	AppliedAt     time.Time
	Confirmed     bool
}

// Overlay is the authoritative list plus pending patches. View applies the
// patches in order; Reconcile drops the ones the server has caught up with.
type Overlay struct {
	mu      sync.RWMutex
	base    []backend.Appointment
	patches []Patch
	now     func() time.Time
}

func NewOverlay() *Overlay {
	return &Overlay{now: time.Now}
}

// Apply records a status change for id and returns its mutation ID.
func (o *Overlay) Apply(id backend.ID, status string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	current, ok := o.statusLocked(id)
	if !ok {
		return "", fmt.Errorf("appointments: appointment %s not loaded", id)
	}
	p := Patch{
		MutationID:    uuid.NewString(),
		AppointmentID: id,
		Status:        status,
		Previous:      current,
		AppliedAt:     o.now(),
	}
	o.patches = append(o.patches, p)
	return p.MutationID, nil
}

// Confirm marks the mutation as accepted by the server. The patch stays
// visible until a Reconcile shows the server copy agrees.
func (o *Overlay) Confirm(mutationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.patches {
		if o.patches[i].MutationID == mutationID {
			o.patches[i].Confirmed = true
			return nil
		}
	}
	return ErrUnknownMutation
}

// Rollback removes exactly the given mutation; later patches survive.
func (o *Overlay) Rollback(mutationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.patches {
		if p.MutationID == mutationID {
			o.patches = append(o.patches[:i], o.patches[i+1:]...)
			return nil
		}
	}
	return ErrUnknownMutation
}

// Reconcile installs a fresh server list. Confirmed patches are dropped
// so the server copy wins, as are patches the server already reflects or
// whose appointment is gone. Only unconfirmed patches keep overriding the
// new list.
func (o *Overlay) Reconcile(list []backend.Appointment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.base = append([]backend.Appointment(nil), list...)

	byID := make(map[backend.ID]string, len(list))
	for _, a := range list {
		byID[a.ID] = a.Status
	}
	kept := o.patches[:0]
	for _, p := range o.patches {
		if p.Confirmed {
			continue
		}
		status, ok := byID[p.AppointmentID]
		if !ok || status == p.Status {
			continue
		}
		kept = append(kept, p)
	}
	o.patches = kept
}

// View is the list as the user should see it.
func (o *Overlay) View() []backend.Appointment {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := append([]backend.Appointment(nil), o.base...)
	index := make(map[backend.ID]int, len(out))
	for i, a := range out {
		index[a.ID] = i
	}
	for _, p := range o.patches {
		if i, ok := index[p.AppointmentID]; ok {
			out[i].Status = p.Status
		}
	}
	return out
}

// Pending returns a copy of the outstanding patches.
func (o *Overlay) Pending() []Patch {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Patch(nil), o.patches...)
}

// Get returns one appointment as seen through the overlay.
func (o *Overlay) Get(id backend.ID) (backend.Appointment, bool) {
	for _, a := range o.View() {
		if a.ID == id {
			return a, true
		}
	}
	return backend.Appointment{}, false
}

func (o *Overlay) statusLocked(id backend.ID) (string, bool) {
	status, found := "", false
	for _, a := range o.base {
		if a.ID == id {
			status, found = a.Status, true
			break
		}
	}
	if !found {
		return "", false
	}
	for _, p := range o.patches {
		if p.AppointmentID == id {
			status = p.Status
		}
	}
	return status, true
}
