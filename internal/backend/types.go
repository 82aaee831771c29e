// Package backend is the typed REST client for the scheduling API.
package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a resource identifier the API may send as a number or a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric IDs back as numbers so the API sees the type it sent.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Bool accepts true/false, 0/1 and "0"/"1"/"true"/"false".
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*v = true
	case "false", "0", "", "null":
		*v = false
	default:
		return fmt.Errorf("bool: unexpected value %s", b)
	}
	return nil
}

// Weekdays is a set of lowercase English weekday names. The API has been
// seen sending both a JSON array and a JSON-encoded string of an array.
type Weekdays []string

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*w = nil
		return nil
	}
	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*w = nil
			return nil
		}
		b = []byte(inner)
	}
	var days []string
	if err := json.Unmarshal(b, &days); err != nil {
		return fmt.Errorf("recurring_days: %w", err)
	}
	out := make(Weekdays, 0, len(days))
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	*w = out
	return nil
}

// Contains reports whether day (any case) is in the set.
func (w Weekdays) Contains(day string) bool {
	day = strings.ToLower(day)
	for _, d := range w {
		if d == day {
			return true
		}
	}
	return false
}

// UnavailableDate is one admin blackout entry.
type UnavailableDate struct {
	ID            ID       `json:"id,omitempty"`
	Date          string   `json:"date,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	IsRecurring   Bool     `json:"is_recurring"`
	RecurringDays Weekdays `json:"recurring_days,omitempty"`
	StartTime     string   `json:"start_time,omitempty"`
	EndTime       string   `json:"end_time,omitempty"`
	AllDay        Bool     `json:"all_day"`
}

// DateKey returns the YYYY-MM-DD prefix of Date. The API sometimes sends a
// full timestamp; only the calendar date the admin picked is meaningful.
func (u UnavailableDate) DateKey() string {
	d := strings.TrimSpace(u.Date)
	if len(d) >= 10 {
		return d[:10]
	}
	return d
}

// Booking is one entry in DailyLimitInfo.BookingsToday.
type Booking struct {
	Time    string `json:"time"`
	Service string `json:"service"`
}

// DailyLimitInfo is the per-user, per-date quota snapshot.
type DailyLimitInfo struct {
	Limit             *int      `json:"limit"`
	Used              int       `json:"used"`
	Remaining         *int      `json:"remaining"`
	HasReachedLimit   bool      `json:"has_reached_limit"`
	Message           string    `json:"message,omitempty"`
	BookingsToday     []Booking `json:"bookings_today"`
	Date              string    `json:"date"`
	NextAvailableTime string    `json:"next_available_time,omitempty"`
}

// Alternative is a normalized suggested slot. Time is HH:MM.
type Alternative struct {
	Date           string `json:"date"`
	Time           string `json:"time"`
	AvailableSlots int    `json:"available_slots"`
}

// Appointment is the subset of the appointment resource this client reads.
type Appointment struct {
	ID                ID     `json:"id"`
	UserID            ID     `json:"user_id,omitempty"`
	AppointmentDate   string `json:"appointment_date"`
	AppointmentTime   string `json:"appointment_time"`
	Type              string `json:"type,omitempty"`
	Status            string `json:"status,omitempty"`
	Notes             string `json:"notes,omitempty"`
	ServiceID         ID     `json:"service_id,omitempty"`
	CustomServiceType string `json:"custom_service_type,omitempty"`
	User              *User  `json:"user,omitempty"`
}

// DateKey returns the YYYY-MM-DD prefix of AppointmentDate.
func (a Appointment) DateKey() string {
	if len(a.AppointmentDate) >= 10 {
		return a.AppointmentDate[:10]
	}
	return a.AppointmentDate
}

// User is the embedded owner of an appointment.
type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// AppointmentRequest is the POST /api/appointments body.
type AppointmentRequest struct {
	AppointmentDate   string `json:"appointment_date"`
	AppointmentTime   string `json:"appointment_time"`
	Type              string `json:"type"`
	Notes             string `json:"notes,omitempty"`
	ServiceID         ID     `json:"service_id,omitempty"`
	CustomServiceType string `json:"custom_service_type,omitempty"`
}

// BlackoutProposal is a candidate unavailable date.
type BlackoutProposal struct {
	Date          string   `json:"date,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	IsRecurring   bool     `json:"is_recurring"`
	RecurringDays []string `json:"recurring_days,omitempty"`
	AllDay        bool     `json:"all_day"`
	StartTime     string   `json:"start_time,omitempty"`
	EndTime       string   `json:"end_time,omitempty"`
}

// Notification modes for bulk cancellation.
const (
	MessageIndividual = "individual"
	MessageGroup      = "group"
)

// BulkCancelRequest is the POST /api/admin/cancel-bulk-appointments body.
type BulkCancelRequest struct {
	AppointmentIDs         []ID   `json:"appointment_ids"`
	CancellationReason     string `json:"cancellation_reason"`
	MessageType            string `json:"message_type"`
	IncludeReasonInMessage bool   `json:"include_reason_in_message"`
	UnavailableDate        string `json:"unavailable_date"`
}

// DashboardStats is the aggregate the admin dashboard polls.
type DashboardStats struct {
	TotalUsers            int `json:"total_users"`
	TotalAdmins           int `json:"total_admins"`
	TotalAppointments     int `json:"total_appointments"`
	PendingAppointments   int `json:"pending_appointments"`
	ApprovedAppointments  int `json:"approved_appointments"`
	CompletedAppointments int `json:"completed_appointments"`
	CancelledAppointments int `json:"cancelled_appointments"`
	TodayAppointments     int `json:"today_appointments"`
}

// Service is a bookable service type.
type Service struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    *Bool  `json:"is_active,omitempty"`
}

// Active reports whether the service can be booked. A missing is_active
// counts as active.
func (s Service) Active() bool {
	return s.IsActive == nil || bool(*s.IsActive)
}
