package models

import (
	"fmt"
	"strings"
	"time"
)

// DayOfWeek names a weekday the way availability windows are stored.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

var weekdays = [...]DayOfWeek{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// DayOfWeekOf maps a calendar date onto its weekday.
func DayOfWeekOf(t time.Time) DayOfWeek {
	return weekdays[t.Weekday()]
}

// ParseDayOfWeek accepts any case of the full English weekday name.
func ParseDayOfWeek(raw string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToUpper(strings.TrimSpace(raw)))
	for _, w := range weekdays {
		if w == d {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid day of week %q", raw)
}

// AvailabilityWindow is a mentor's recurring weekly bookable window.
type AvailabilityWindow struct {
	ID        string    `db:"id" json:"id"`
	MentorID  string    `db:"mentor_id" json:"mentor_id"`
	DayOfWeek DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClockMinutes parses a 24h "HH:MM" string into minutes past midnight. Both
// parts must be exactly two ASCII digits so each wall-clock time has a single
// spelling.
func ClockMinutes(raw string) (int, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", raw)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, fmt.Errorf("invalid time %q: want HH:MM", raw)
		}
	}
	h := int(raw[0]-'0')*10 + int(raw[1]-'0')
	if h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m := int(raw[3]-'0')*10 + int(raw[4]-'0')
	if m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return h*60 + m, nil
}

// ValidateClockRange checks both ends parse and start precedes end.
func ValidateClockRange(start, end string) error {
	s, err := ClockMinutes(start)
	if err != nil {
		return err
	}
	e, err := ClockMinutes(end)
	if err != nil {
		return err
	}
	if s >= e {
		return fmt.Errorf("start time %s must be before end time %s", start, end)
	}
	return nil
}
