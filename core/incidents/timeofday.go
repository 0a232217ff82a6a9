package incidents

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a parsed HH:MM clock value. The workbook stores these fields
// as free text; parsing happens once at the boundary so downstream
// arithmetic never operates on malformed strings.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay accepts "H:MM" or "HH:MM". Anything else, including blank,
// reports ok=false; callers treat that as null rather than an error, matching
// the workbook's tolerance for sloppy hand-entered times.
func ParseTimeOfDay(raw string) (TimeOfDay, bool) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return TimeOfDay{}, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return TimeOfDay{}, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hour: h, Minute: m}, true
}

// MinutesBetween computes arrival minus alarm in minutes, crossing midnight
// when arrival reads earlier than alarm.
func MinutesBetween(alarm, arrival TimeOfDay) int {
	d := arrival.Minutes() - alarm.Minutes()
	if d < 0 {
		d += 24 * 60
	}
	return d
}
