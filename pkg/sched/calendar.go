package sched

import "time"

// HolidayCalendar answers whether a calendar date counts as a holiday.
// Implementations receive the date truncated to a day in the job's timezone
// and must only inspect its year, month and day. A nil calendar means
// "no holidays".
type HolidayCalendar interface {
	Contains(date time.Time) bool
}

// HolidayFunc adapts a plain function into a HolidayCalendar.
type HolidayFunc func(date time.Time) bool

// Contains implements HolidayCalendar.
func (f HolidayFunc) Contains(date time.Time) bool { return f(date) }

func isHoliday(cal HolidayCalendar, date time.Time) bool {
	if cal == nil {
		return false
	}
	return cal.Contains(date)
}
