package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawAlternative is the union of field names the suggest endpoint uses.
type rawAlternative struct {
	Date                string          `json:"date"`
	FirstAvailableTime  string          `json:"first_available_time"`
	AvailableTimes      []string        `json:"available_times"`
	AvailableSlots      json.RawMessage `json:"available_slots"`
	AvailableSlotsCount *int            `json:"available_slots_count"`
}

// normalizeAlternatives resolves each raw entry to one {date, time} pair.
// Entries without a date or any bookable time are dropped. The result is
// never nil.
func normalizeAlternatives(raw []rawAlternative) []Alternative {
	out := make([]Alternative, 0, len(raw))
	for _, r := range raw {
		date := strings.TrimSpace(r.Date)
		if len(date) >= 10 {
			date = date[:10]
		}
		if date == "" {
			continue
		}

		times := r.AvailableTimes
		slots, slotTimes := parseSlots(r.AvailableSlots)
		if len(times) == 0 {
			times = slotTimes
		}

		t := NormalizeClock(r.FirstAvailableTime)
		if t == "" && len(times) > 0 {
			t = NormalizeClock(times[0])
		}
		if t == "" {
			continue
		}

		count := slots
		if count < 0 && r.AvailableSlotsCount != nil {
			count = *r.AvailableSlotsCount
		}
		if count < 1 {
			count = max(len(times), 1)
		}
		out = append(out, Alternative{Date: date, Time: t, AvailableSlots: count})
	}
	return out
}

// parseSlots reads available_slots as either a count or a list of times.
// A missing or unreadable value yields -1.
func parseSlots(raw json.RawMessage) (int, []string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return -1, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var times []string
	if err := json.Unmarshal(raw, &times); err == nil {
		return len(times), times
	}
	var objs []struct {
		Time string `json:"time"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		times = make([]string, 0, len(objs))
		for _, o := range objs {
			times = append(times, o.Time)
		}
		return len(times), times
	}
	return -1, nil
}

// NormalizeClock turns "H:MM", "HH:MM:SS" or a 12-hour "2:00 PM" into
// "HH:MM". Anything else returns "".
func NormalizeClock(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(v, suffix) {
			meridiem = suffix
			v = strings.TrimSpace(strings.TrimSuffix(v, suffix))
			break
		}
	}

	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 || len(parts[1]) != 2 {
		return ""
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 {
		return ""
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ""
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return ""
		}
	}

	switch meridiem {
	case "":
		if h < 0 || h > 23 {
			return ""
		}
	default:
		if h < 1 || h > 12 {
			return ""
		}
		h %= 12
		if meridiem == "PM" {
			h += 12
		}
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
