package booking

import (
	"time"

	"github.com/wolfman30/notary-booking/internal/availability"
)

// Day is one cell of the month calendar.
type Day struct {
	Date     string
	Disabled bool
	Reason   string
	Today    bool
	Selected bool
}

// SlotCell is one entry of the time grid for the drafted date.
type SlotCell struct {
	Time     string
	Label    string
	Disabled bool
	Info     string
	Selected bool
}

// Month lays out every day of the month containing anchor.
func (f *Flow) Month(anchor time.Time) []Day {
	anchor = anchor.In(f.loc)
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, f.loc)
	today := f.today()

	var days []Day
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		key := availability.DateKey(d)
		reason := f.DateReason(d)
		days = append(days, Day{
			Date:     key,
			Disabled: reason != "",
			Reason:   reason,
			Today:    key == today,
			Selected: key == f.draft.AppointmentDate,
		})
	}
	return days
}

// TimeGrid lists the displayed slots for the drafted date. Every slot is
// disabled while time selection is not allowed.
func (f *Flow) TimeGrid() []SlotCell {
	enabled := f.CanSelectTime()
	grid := availability.Grid()
	cells := make([]SlotCell, 0, len(grid))
	for _, c := range grid {
		info := availability.TimeSlotInfo(c)
		cells = append(cells, SlotCell{
			Time:     c.String(),
			Label:    c.Display(),
			Disabled: !enabled || info != "",
			Info:     info,
			Selected: c.String() == f.draft.AppointmentTime,
		})
	}
	return cells
}
