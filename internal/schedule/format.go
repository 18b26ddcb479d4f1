package schedule

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the only accepted calendar date format.
	DateLayout = "2006-01-02"
	// TimeLayout is the only accepted time-of-day format.
	TimeLayout = "15:04"
)

// DefaultSlots is the fixed ordered set of bookable hourly slots.
var DefaultSlots = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}

// DefaultCutoff is the time of day after which same-day bookings are refused.
const DefaultCutoff = "16:00"

// ValidDate reports whether s is a real calendar date written as YYYY-MM-DD.
func ValidDate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if i == 4 || i == 7 {
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidTime reports whether s is HH:MM with hours 00-23 and minutes 00-59.
func ValidTime(s string) bool {
	_, _, ok := splitTime(s)
	return ok
}

// minutesOf converts a valid HH:MM to minutes since midnight.
func minutesOf(s string) (int, bool) {
	h, m, ok := splitTime(s)
	if !ok {
		return 0, false
	}
	return h*60 + m, true
}

func splitTime(s string) (hour, minute int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	if !isDigits(parts[0]) || !isDigits(parts[1]) {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeSlots validates and de-duplicates a configured slot list, keeping its order.
// An empty list yields DefaultSlots.
func NormalizeSlots(slots []string) ([]string, bool) {
	if len(slots) == 0 {
		return append([]string(nil), DefaultSlots...), true
	}
	seen := make(map[string]bool, len(slots))
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		s = strings.TrimSpace(s)
		if !ValidTime(s) {
			return nil, false
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, true
}
