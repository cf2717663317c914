package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SessionLength = time.Hour

	// Bookable start hours are [OpenHour, CloseHour).
	OpenHour  = 9
	CloseHour = 16

	DateLayout = "2006-01-02"
)

// Slot is a validated date/time pair and the instants it covers.
type Slot struct {
	Date  string
	Time  string
	Start time.Time
	End   time.Time
}

// NormalizeTime accepts H:M, HH:MM or HH:MM:SS and returns HH:MM with its hour.
// Seconds are dropped.
func NormalizeTime(raw string) (string, int, error) {
	invalid := fmt.Errorf("%w: invalid time value %q", ErrInvalidInput, raw)

	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return "", 0, invalid
	}
	fields := make([]int, len(parts))
	for i, p := range parts {
		if p == "" || len(p) > 2 {
			return "", 0, invalid
		}
		n, err := parseDigits(p)
		if err != nil {
			return "", 0, invalid
		}
		fields[i] = n
	}

	hour, minute := fields[0], fields[1]
	if hour > 23 || minute > 59 || (len(fields) == 3 && fields[2] > 59) {
		return "", 0, invalid
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), hour, nil
}

func parseDigits(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return d, nil
}

// InWindow reports whether a session may start at hour.
func InWindow(hour int) bool {
	return hour >= OpenHour && hour < CloseHour
}

// ParseSlot validates date and time and places the session in loc.
func ParseSlot(date, clock string, loc *time.Location) (Slot, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Slot{}, err
	}
	t, hour, err := NormalizeTime(clock)
	if err != nil {
		return Slot{}, err
	}
	if !InWindow(hour) {
		return Slot{}, fmt.Errorf("%w: time slot must be between 9 AM and 4 PM", ErrInvalidInput)
	}

	minute, _ := strconv.Atoi(t[3:])
	start := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
	return Slot{
		Date:  d.Format(DateLayout),
		Time:  t,
		Start: start,
		End:   start.Add(SessionLength),
	}, nil
}

// Overlaps tests half-open intervals [aStart, aEnd) and [bStart, bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// HourlyStarts lists the on-the-hour start times inside the booking window.
func HourlyStarts() []string {
	out := make([]string, 0, CloseHour-OpenHour)
	for h := OpenHour; h < CloseHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}
