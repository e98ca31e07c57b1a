package pricing

import (
	"fmt"
	"strings"
	"time"
)

// HolidayCalendar reports whether a calendar day carries the holiday premium.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is a calendar without holidays.
type NoHolidays struct{}

// IsHoliday always reports false.
func (NoHolidays) IsHoliday(time.Time) bool {
	return false
}

// FixedCalendar is a static set of holiday dates.
type FixedCalendar struct {
	dates map[time.Time]struct{}
}

// NewFixedCalendar builds a calendar from dates, truncated to UTC days.
func NewFixedCalendar(dates ...time.Time) FixedCalendar {
	calendar := FixedCalendar{dates: make(map[time.Time]struct{}, len(dates))}
	for _, date := range dates {
		calendar.dates[dateOf(date)] = struct{}{}
	}
	return calendar
}

// ParseFixedCalendar builds a calendar from YYYY-MM-DD values. Blank values are skipped.
func ParseFixedCalendar(values []string) (FixedCalendar, error) {
	dates := make([]time.Time, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		date, err := time.Parse(time.DateOnly, trimmed)
		if err != nil {
			return FixedCalendar{}, fmt.Errorf("%w: %q", ErrInvalidHoliday, trimmed)
		}
		dates = append(dates, date)
	}
	return NewFixedCalendar(dates...), nil
}

// IsHoliday reports whether date is in the set.
func (calendar FixedCalendar) IsHoliday(date time.Time) bool {
	_, ok := calendar.dates[dateOf(date)]
	return ok
}

// Len returns the number of configured holidays.
func (calendar FixedCalendar) Len() int {
	return len(calendar.dates)
}
