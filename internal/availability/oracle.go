// Package availability decides whether a calendar date or a time of day
// can be booked, before any capacity check on the backend.
package availability

import (
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/notary-booking/internal/backend"
)

const (
	WeekendReason = "Weekend - Closed"
	DefaultReason = "Not available"
)

// DateKey formats t as YYYY-MM-DD from its own calendar fields. Callers
// must not convert to UTC first; a late-evening local time would roll over
// to the next day.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ParseDate parses YYYY-MM-DD (or a longer timestamp, truncated) as
// midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}

// Oracle answers date-level availability from the loaded blackout set.
type Oracle struct {
	mu        sync.RWMutex
	byDate    map[string]backend.UnavailableDate
	recurring []backend.UnavailableDate
}

// NewOracle creates an oracle with an empty blackout set.
func NewOracle() *Oracle {
	return &Oracle{byDate: map[string]backend.UnavailableDate{}}
}

// SetDates replaces the blackout set.
func (o *Oracle) SetDates(dates []backend.UnavailableDate) {
	byDate := make(map[string]backend.UnavailableDate, len(dates))
	var recurring []backend.UnavailableDate
	for _, d := range dates {
		if d.IsRecurring && len(d.RecurringDays) > 0 {
			recurring = append(recurring, d)
			continue
		}
		key := d.DateKey()
		if key == "" {
			continue
		}
		if _, exists := byDate[key]; !exists {
			byDate[key] = d
		}
	}
	o.mu.Lock()
	o.byDate = byDate
	o.recurring = recurring
	o.mu.Unlock()
}

// Len returns how many blackout entries are loaded.
func (o *Oracle) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.byDate) + len(o.recurring)
}

// IsDateUnavailable reports whether t's calendar day cannot be booked.
func (o *Oracle) IsDateUnavailable(t time.Time) bool {
	return o.UnavailableReason(t) != ""
}

// UnavailableReason explains why t's day cannot be booked, or returns ""
// when it can. The weekend rule wins over any admin reason.
func (o *Oracle) UnavailableReason(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return WeekendReason
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if d, ok := o.byDate[DateKey(t)]; ok {
		return reasonOrDefault(d.Reason)
	}
	weekday := strings.ToLower(t.Weekday().String())
	for _, d := range o.recurring {
		if d.RecurringDays.Contains(weekday) {
			return reasonOrDefault(d.Reason)
		}
	}
	return ""
}

func reasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return DefaultReason
	}
	return reason
}
