package sched

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ==========================================================================
// Schedule
// ==========================================================================

// Schedule computes firing instants for a job. The built-in variants are
// DayClass, Monthly, Repeat, OneShot and Never; additional variants can be
// injected through Scheduler.RegisterExternalSchedule.
type Schedule interface {
	// Next reports the firing instant that follows in.Now. The zero time
	// means the schedule will never self-fire again.
	Next(in NextInput) time.Time

	// Kind is the variant name used on JSON surfaces.
	Kind() string

	// Interval is the raw interval value the schedule was described with,
	// used for displays and signature strings.
	Interval() any
}

// NextInput carries the execution context a Schedule needs to resolve its
// next firing instant.
type NextInput struct {
	Now      time.Time
	Loc      *time.Location
	Calendar HolidayCalendar
	Slots    []ClockTime
	JustRan  bool
	PrevNext time.Time     // previous target, drives Repeat cadence
	Grace    time.Duration // startup grace window, whole minutes
}

func (in NextInput) location() *time.Location {
	if in.Loc == nil {
		return time.Local
	}
	return in.Loc
}

// ==========================================================================
// Time-of-day slots
// ==========================================================================

// ClockTime is a time-of-day slot.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses an "HH:MM" literal.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("hour out of range in %q", s)
	}
	if minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("minute out of range in %q", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// String renders the slot back to its "HH:MM" literal.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// onDate resolves the slot on the given calendar date. time.Date forwards
// imaginary instants inside a DST gap into the post-transition wall clock,
// which is the behavior the schedule model requires.
func (c ClockTime) onDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, c.Hour, c.Minute, 0, 0, loc)
}

// earliestSlotOn returns the earliest slot instant on the date that
// satisfies the due bound: strictly after now when the job just ran,
// otherwise at or after now minus the grace window. Equal candidates keep
// their slot order.
func earliestSlotOn(year int, month time.Month, day int, in NextInput) (time.Time, bool) {
	loc := in.Loc
	var best time.Time
	found := false
	for _, slot := range in.Slots {
		t := slot.onDate(year, month, day, loc)
		if in.JustRan {
			if !t.After(in.Now) {
				continue
			}
		} else if t.Before(in.Now.Add(-in.Grace)) {
			continue
		}
		if !found || t.Before(best) {
			best = t
			found = true
		}
	}
	return best, found
}

// earliestSlotClock returns the earliest slot instant on the date with no
// due bound, for dates already known to lie in the future.
func earliestSlotClock(year int, month time.Month, day int, slots []ClockTime, loc *time.Location) time.Time {
	best := slots[0].onDate(year, month, day, loc)
	for _, slot := range slots[1:] {
		if t := slot.onDate(year, month, day, loc); t.Before(best) {
			best = t
		}
	}
	return best
}

// ==========================================================================
// Day classes
// ==========================================================================

// Day-class literals accepted by the builder.
const (
	ClassDay            = "day"
	ClassWeekday        = "weekday"
	ClassWeekend        = "weekend"
	ClassBusinessDay    = "businessday"
	ClassTradingHoliday = "trading-holiday"
	ClassEOM            = "eom"
	ClassEOMWeekday     = "eom-weekday"
	ClassEOMBusiness    = "eom-businessday"
)

var weekdayNames = map[string]int{
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
	"sunday":    7,
}

// isDayClass reports whether the literal names a supported day class.
func isDayClass(s string) bool {
	switch s {
	case ClassDay, ClassWeekday, ClassWeekend, ClassBusinessDay,
		ClassTradingHoliday, ClassEOM, ClassEOMWeekday, ClassEOMBusiness:
		return true
	}
	_, ok := weekdayNames[s]
	return ok
}

// DayClass fires on every date admitted by its class predicate, at the
// earliest qualifying slot.
type DayClass struct {
	Class string
}

// Kind implements Schedule.
func (s DayClass) Kind() string { return "day-class" }

// Interval implements Schedule.
func (s DayClass) Interval() any { return s.Class }

// Next implements Schedule.
func (s DayClass) Next(in NextInput) time.Time {
	in.Loc = in.location()
	in.Slots = slotsOrMidnight(in.Slots)
	now := in.Now.In(in.Loc)

	year, month, day := now.Date()
	if s.runnableOn(time.Date(year, month, day, 0, 0, 0, 0, in.Loc), in.Calendar) {
		if t, ok := earliestSlotOn(year, month, day, in); ok {
			return t
		}
	}

	d := time.Date(year, month, day, 0, 0, 0, 0, in.Loc)
	for {
		d = d.AddDate(0, 0, 1)
		if s.runnableOn(d, in.Calendar) {
			return earliestSlotClock(d.Year(), d.Month(), d.Day(), in.Slots, in.Loc)
		}
	}
}

// runnableOn evaluates the class predicate for a date in the job timezone.
func (s DayClass) runnableOn(d time.Time, cal HolidayCalendar) bool {
	switch s.Class {
	case ClassDay:
		return true
	case ClassWeekday:
		return isoWeekday(d) <= 5
	case ClassWeekend:
		return isoWeekday(d) >= 6
	case ClassBusinessDay:
		return isoWeekday(d) <= 5 && !isHoliday(cal, d)
	case ClassTradingHoliday:
		return isoWeekday(d) <= 5 && isHoliday(cal, d)
	case ClassEOM:
		return d.Day() == daysInMonth(d.Year(), d.Month())
	case ClassEOMWeekday:
		return sameDate(d, lastWorkingDay(d.Year(), d.Month(), d.Location(), nil))
	case ClassEOMBusiness:
		return sameDate(d, lastWorkingDay(d.Year(), d.Month(), d.Location(), cal))
	}
	if iso, ok := weekdayNames[s.Class]; ok {
		return isoWeekday(d) == iso
	}
	return false
}

// ==========================================================================
// Monthly
// ==========================================================================

// Monthly fires once per month on a numbered day. Strict schedules skip
// months lacking the day; non-strict schedules clamp to the month's last
// day.
type Monthly struct {
	Day    int
	Strict bool
}

// Kind implements Schedule.
func (s Monthly) Kind() string { return "monthly" }

// Interval implements Schedule.
func (s Monthly) Interval() any { return ordinal(s.Day) }

// Next implements Schedule.
func (s Monthly) Next(in NextInput) time.Time {
	in.Loc = in.location()
	in.Slots = slotsOrMidnight(in.Slots)
	now := in.Now.In(in.Loc)
	year, month, _ := now.Date()

	// Walk months until a target date carries a qualifying slot. The
	// current month is skipped when its target day (clamped for
	// non-strict schedules) has already fully passed.
	for {
		last := daysInMonth(year, month)
		target := s.Day
		if target > last {
			if s.Strict {
				year, month = nextMonth(year, month)
				continue
			}
			target = last
		}
		if t, ok := earliestSlotOn(year, month, target, in); ok {
			return t
		}
		year, month = nextMonth(year, month)
	}
}

// ==========================================================================
// Repeat
// ==========================================================================

// Repeat fires every fixed interval. After a run the next target is the
// previous target plus the interval, which preserves cadence despite tick
// jitter.
type Repeat struct {
	Every time.Duration
}

// Kind implements Schedule.
func (s Repeat) Kind() string { return "repeat" }

// Interval implements Schedule.
func (s Repeat) Interval() any { return s.Every.Seconds() }

// Next implements Schedule.
func (s Repeat) Next(in NextInput) time.Time {
	if in.JustRan && !in.PrevNext.IsZero() {
		return in.PrevNext.Add(s.Every)
	}
	return in.Now.Add(s.Every)
}

// ==========================================================================
// OneShot
// ==========================================================================

// OneShot fires once on a fixed calendar date. Once it has fired, or once
// every slot on the date lies beyond the grace window, it is permanently
// inert.
type OneShot struct {
	Date time.Time // calendar date; clock and zone are ignored
}

// Kind implements Schedule.
func (s OneShot) Kind() string { return "one-shot" }

// Interval implements Schedule.
func (s OneShot) Interval() any { return s.Date.Format("2006-01-02") }

// Next implements Schedule.
func (s OneShot) Next(in NextInput) time.Time {
	if in.JustRan {
		return time.Time{}
	}
	in.Loc = in.location()
	in.Slots = slotsOrMidnight(in.Slots)
	year, month, day := s.Date.Date()
	if t, ok := earliestSlotOn(year, month, day, in); ok {
		return t
	}
	return time.Time{}
}

// ==========================================================================
// Never
// ==========================================================================

// Never never self-fires; jobs carrying it only run through explicit
// reruns.
type Never struct{}

// Kind implements Schedule.
func (s Never) Kind() string { return "never" }

// Interval implements Schedule.
func (s Never) Interval() any { return "never" }

// Next implements Schedule.
func (s Never) Next(in NextInput) time.Time { return time.Time{} }

// ==========================================================================
// Date helpers
// ==========================================================================

// isoWeekday maps time.Weekday onto ISO numbering: Monday 1 .. Sunday 7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month normalizes to this month's last day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// lastWorkingDay walks back from the month's last day over weekends and,
// when a calendar is given, over holidays.
func lastWorkingDay(year int, month time.Month, loc *time.Location, cal HolidayCalendar) time.Time {
	d := time.Date(year, month, daysInMonth(year, month), 0, 0, 0, 0, loc)
	for isoWeekday(d) > 5 || isHoliday(cal, d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func slotsOrMidnight(slots []ClockTime) []ClockTime {
	if len(slots) == 0 {
		return []ClockTime{{}}
	}
	return slots
}
