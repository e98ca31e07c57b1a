package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	urgencyMultiplier = decimal.RequireFromString("1.15")
	holidayMultiplier = decimal.RequireFromString("1.252")
)

// UrgencyWindowDays is how many days from today (inclusive) the urgency premium applies.
const UrgencyWindowDays = 7

// Base starts from the room's base price.
func Base(subject Subject) decimal.Decimal {
	return subject.BasePrice
}

// Surge multiplies by the cell's surge factor. A zero factor is unset and treated as 1.
func Surge(subject Subject, price decimal.Decimal) decimal.Decimal {
	if subject.SurgeFactor.IsZero() {
		return price
	}
	return price.Mul(subject.SurgeFactor)
}

// Urgency applies the short-notice premium to dates in [today, today+7). Today is
// the subject's Today when set, otherwise the day now reports.
func Urgency(now func() time.Time) Adjustment {
	return func(subject Subject, price decimal.Decimal) decimal.Decimal {
		reference := subject.Today
		if reference.IsZero() {
			reference = now()
		}
		today := dateOf(reference)
		date := dateOf(subject.Date)
		if date.Before(today) || !date.Before(today.AddDate(0, 0, UrgencyWindowDays)) {
			return price
		}
		return price.Mul(urgencyMultiplier)
	}
}

// Holiday applies the holiday premium to dates the calendar marks.
func Holiday(calendar HolidayCalendar) Adjustment {
	return func(subject Subject, price decimal.Decimal) decimal.Decimal {
		if calendar == nil || !calendar.IsHoliday(dateOf(subject.Date)) {
			return price
		}
		return price.Mul(holidayMultiplier)
	}
}

// Default builds the production chain: base, surge, urgency, holiday.
func Default(now func() time.Time, calendar HolidayCalendar) Chain {
	chain, _ := NewChain(Base, Surge, Urgency(now), Holiday(calendar))
	return chain
}
