package availability

import (
	"fmt"
	"strconv"
	"strings"
)

// Business-hours policy. Capacity is checked by the backend, not here.
const (
	OpenHour      = 8
	CloseHour     = 17
	LunchHour     = 12
	SlotStepMins  = 30
	LunchInfo     = "Lunch break (12:00 PM - 1:00 PM)"
	OutsideHours  = "Outside business hours (8:00 AM - 5:00 PM)"
	NotOnSlotGrid = "Appointments start on the hour or half hour"
)

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("availability: invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("availability: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("availability: invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// String formats as HH:MM, the form the API expects.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Display formats as a 12-hour label such as "9:30 AM".
func (c Clock) Display() string {
	suffix := "AM"
	if c.Hour >= 12 {
		suffix = "PM"
	}
	h := c.Hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, c.Minute, suffix)
}

// OnGrid reports whether c is a slot start (on the hour or half hour).
func (c Clock) OnGrid() bool {
	return c.Minute%SlotStepMins == 0
}

// IsTimeSlotAvailable reports whether c falls inside business hours and
// outside the lunch hour.
func IsTimeSlotAvailable(c Clock) bool {
	return c.Hour >= OpenHour && c.Hour < CloseHour && c.Hour != LunchHour
}

// TimeSlotInfo explains why c is not bookable, or returns "" when it is.
func TimeSlotInfo(c Clock) string {
	switch {
	case c.Hour == LunchHour:
		return LunchInfo
	case c.Hour < OpenHour || c.Hour >= CloseHour:
		return OutsideHours
	}
	return ""
}

// Slots returns every bookable slot start in order.
func Slots() []Clock {
	var out []Clock
	for h := OpenHour; h < CloseHour; h++ {
		for m := 0; m < 60; m += SlotStepMins {
			c := Clock{Hour: h, Minute: m}
			if IsTimeSlotAvailable(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Grid returns the full displayed grid, including disabled lunch slots.
func Grid() []Clock {
	var out []Clock
	for h := OpenHour; h < CloseHour; h++ {
		for m := 0; m < 60; m += SlotStepMins {
			out = append(out, Clock{Hour: h, Minute: m})
		}
	}
	return out
}
