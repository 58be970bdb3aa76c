package engine

import (
	"time"

	"reorder/internal/model"
)

// Schedule is the calendar rule of a recurring order. AnchorDay is the
// day-of-month of the start date; monthly math clamps to it so an order
// anchored on the 31st fires on Apr 30 but returns to May 31.
type Schedule struct {
	Frequency string
	Interval  int
	AnchorDay int
}

// ScheduleOf extracts the calendar rule from a recurring order.
func ScheduleOf(order *model.RecurringOrder) Schedule {
	return Schedule{
		Frequency: order.Frequency,
		Interval:  order.Interval,
		AnchorDay: order.AnchorDay,
	}
}

// NextExecution computes the next execution date strictly after from.
// If the stepped date still lies in the past (the engine was offline), it
// keeps advancing until the result is >= now: missed cycles collapse into a
// single catch-up execution instead of firing once per missed cycle.
// Pure and deterministic; now is injected so tests can pin the clock.
func NextExecution(s Schedule, from, now time.Time) time.Time {
	if s.Interval < 1 {
		s.Interval = 1
	}
	next := step(s, from)
	for next.Before(now) {
		next = step(s, next)
	}
	return next
}

func step(s Schedule, from time.Time) time.Time {
	switch s.Frequency {
	case model.FrequencyDaily:
		return from.AddDate(0, 0, s.Interval)
	case model.FrequencyWeekly:
		return from.AddDate(0, 0, 7*s.Interval)
	case model.FrequencyBiweekly:
		return from.AddDate(0, 0, 14*s.Interval)
	case model.FrequencyMonthly:
		return addMonthsClamped(from, s.Interval, s.AnchorDay)
	case model.FrequencyQuarterly:
		return addMonthsClamped(from, 3*s.Interval, s.AnchorDay)
	default:
		// Unknown frequencies behave as daily rather than looping forever.
		return from.AddDate(0, 0, s.Interval)
	}
}

// addMonthsClamped advances by months keeping the anchor day-of-month,
// clamped to the last valid day of the target month. It never overflows
// into a later month the way time.AddDate does.
func addMonthsClamped(from time.Time, months, anchorDay int) time.Time {
	if anchorDay < 1 {
		anchorDay = from.Day()
	}
	year, month, _ := from.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, from.Location())

	day := anchorDay
	if last := daysIn(target.Year(), target.Month(), from.Location()); day > last {
		day = last
	}

	h, m, sec := from.Clock()
	return time.Date(target.Year(), target.Month(), day, h, m, sec, from.Nanosecond(), from.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
