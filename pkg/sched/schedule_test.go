package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

// holidaysOn builds a fixed-date holiday calendar.
func holidaysOn(dates ...string) HolidayCalendar {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return HolidayFunc(func(date time.Time) bool {
		return set[date.Format("2006-01-02")]
	})
}

func TestDayClassNext_SameDayFutureSlot(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	s := DayClass{Class: ClassDay}

	next := s.Next(NextInput{
		Now:   at(ny, 2024, time.June, 10, 8, 0),
		Loc:   ny,
		Slots: []ClockTime{{Hour: 23, Minute: 59}},
	})

	require.True(t, next.Equal(at(ny, 2024, time.June, 10, 23, 59)), "got %s", next)
}

func TestDayClassNext_MondayRollsOverAfterSlot(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	s := DayClass{Class: "monday"}

	// Monday 2024-06-10 at 10:01, one minute past the only slot.
	next := s.Next(NextInput{
		Now:   at(ny, 2024, time.June, 10, 10, 1),
		Loc:   ny,
		Slots: []ClockTime{{Hour: 10, Minute: 0}},
	})

	require.True(t, next.Equal(at(ny, 2024, time.June, 17, 10, 0)), "got %s", next)
}

func TestDayClassNext_WeekendSkipsToSaturday(t *testing.T) {
	utc := time.UTC
	s := DayClass{Class: ClassWeekend}

	// Wednesday 2024-01-17.
	next := s.Next(NextInput{
		Now:   at(utc, 2024, time.January, 17, 10, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 10, Minute: 0}},
	})

	require.Equal(t, time.Saturday, next.Weekday())
	require.Equal(t, 20, next.Day())
}

func TestDayClassNext_PicksEarliestQualifyingSlot(t *testing.T) {
	utc := time.UTC
	s := DayClass{Class: ClassDay}

	next := s.Next(NextInput{
		Now:   at(utc, 2024, time.June, 10, 8, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 18, Minute: 0}, {Hour: 9, Minute: 0}},
	})

	require.True(t, next.Equal(at(utc, 2024, time.June, 10, 9, 0)), "got %s", next)
}

func TestDayClassNext_NoSlotsDefaultsToMidnight(t *testing.T) {
	utc := time.UTC
	s := DayClass{Class: ClassDay}

	next := s.Next(NextInput{
		Now: at(utc, 2024, time.June, 10, 8, 0),
		Loc: utc,
	})

	require.True(t, next.Equal(at(utc, 2024, time.June, 11, 0, 0)), "got %s", next)
}

func TestDayClassNext_GraceAdmitsMissedSlot(t *testing.T) {
	utc := time.UTC
	s := DayClass{Class: ClassDay}

	// 09:30 slot missed half an hour ago; the grace window reaches back
	// an hour, so it still fires today.
	next := s.Next(NextInput{
		Now:   at(utc, 2024, time.June, 10, 10, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 9, Minute: 30}},
		Grace: time.Hour,
	})

	require.True(t, next.Equal(at(utc, 2024, time.June, 10, 9, 30)), "got %s", next)
}

func TestDayClassNext_JustRanNeedsStrictlyLaterSlot(t *testing.T) {
	utc := time.UTC
	s := DayClass{Class: ClassDay}

	// Ran at the 09:30 slot; even with a grace window the same slot must
	// not fire again, so the next day's slot is chosen.
	next := s.Next(NextInput{
		Now:     at(utc, 2024, time.June, 10, 9, 30),
		Loc:     utc,
		Slots:   []ClockTime{{Hour: 9, Minute: 30}},
		Grace:   time.Hour,
		JustRan: true,
	})

	require.True(t, next.Equal(at(utc, 2024, time.June, 11, 9, 30)), "got %s", next)
}

func TestDayClassNext_DSTGapForwardsSlot(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	s := DayClass{Class: ClassDay}

	// 2024-03-10 02:30 does not exist in New York; the slot lands on the
	// post-transition clock.
	next := s.Next(NextInput{
		Now:   at(ny, 2024, time.March, 10, 0, 0),
		Loc:   ny,
		Slots: []ClockTime{{Hour: 2, Minute: 30}},
	})

	require.Equal(t, 10, next.Day())
	require.Equal(t, 3, next.Hour())
	require.Equal(t, 30, next.Minute())
}

func TestDayClassNext_IdempotentAtFixedNow(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	s := DayClass{Class: ClassBusinessDay}
	in := NextInput{
		Now:      at(ny, 2024, time.June, 10, 8, 0),
		Loc:      ny,
		Calendar: holidaysOn("2024-06-10"),
		Slots:    []ClockTime{{Hour: 9, Minute: 30}},
	}

	first := s.Next(in)
	second := s.Next(in)

	require.True(t, first.Equal(second))
}

func TestDayClassBusinessDay_TradingCalendar(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	cal := holidaysOn("2020-04-10")
	s := DayClass{Class: ClassBusinessDay}

	testCases := []struct {
		date     time.Time
		runnable bool
	}{
		{at(ny, 2020, time.April, 9, 0, 0), true},   // Thursday
		{at(ny, 2020, time.April, 10, 0, 0), false}, // Good Friday
		{at(ny, 2020, time.April, 11, 0, 0), false}, // Saturday
	}

	for _, tc := range testCases {
		require.Equal(t, tc.runnable, s.runnableOn(tc.date, cal), tc.date.Format("2006-01-02"))
	}
}

func TestDayClassNext_TradingHolidayFiresOnHoliday(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	s := DayClass{Class: ClassTradingHoliday}

	// Monday 2020-04-06; Good Friday is the only upcoming weekday holiday.
	next := s.Next(NextInput{
		Now:      at(ny, 2020, time.April, 6, 8, 0),
		Loc:      ny,
		Calendar: holidaysOn("2020-04-10"),
		Slots:    []ClockTime{{Hour: 9, Minute: 0}},
	})

	require.True(t, next.Equal(at(ny, 2020, time.April, 10, 9, 0)), "got %s", next)
}

func TestDayClassNext_EndOfMonthVariants(t *testing.T) {
	utc := time.UTC

	// April 2024 ends on Tuesday the 30th.
	eom := DayClass{Class: ClassEOM}.Next(NextInput{
		Now:   at(utc, 2024, time.April, 10, 8, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 17, Minute: 0}},
	})
	require.True(t, eom.Equal(at(utc, 2024, time.April, 30, 17, 0)), "got %s", eom)

	// November 2024 ends on Saturday the 30th; the last weekday is
	// Friday the 29th.
	eomWeekday := DayClass{Class: ClassEOMWeekday}.Next(NextInput{
		Now:   at(utc, 2024, time.November, 10, 8, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 17, Minute: 0}},
	})
	require.True(t, eomWeekday.Equal(at(utc, 2024, time.November, 29, 17, 0)), "got %s", eomWeekday)

	// With the 29th a holiday the last business day backs up to Thursday.
	eomBusiness := DayClass{Class: ClassEOMBusiness}.Next(NextInput{
		Now:      at(utc, 2024, time.November, 10, 8, 0),
		Loc:      utc,
		Calendar: holidaysOn("2024-11-29"),
		Slots:    []ClockTime{{Hour: 17, Minute: 0}},
	})
	require.True(t, eomBusiness.Equal(at(utc, 2024, time.November, 28, 17, 0)), "got %s", eomBusiness)
}

func TestMonthlyNext_ClampVsStrict(t *testing.T) {
	utc := time.UTC
	in := NextInput{
		Now:   at(utc, 2024, time.February, 15, 12, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 23, Minute: 59}},
	}

	clamped := Monthly{Day: 31, Strict: false}.Next(in)
	require.True(t, clamped.Equal(at(utc, 2024, time.February, 29, 23, 59)), "got %s", clamped)

	strict := Monthly{Day: 31, Strict: true}.Next(in)
	require.True(t, strict.Equal(at(utc, 2024, time.March, 31, 23, 59)), "got %s", strict)
}

func TestMonthlyNext_SkipsPassedTarget(t *testing.T) {
	utc := time.UTC

	next := Monthly{Day: 15, Strict: true}.Next(NextInput{
		Now:   at(utc, 2024, time.June, 20, 8, 0),
		Loc:   utc,
		Slots: []ClockTime{{Hour: 9, Minute: 0}},
	})

	require.True(t, next.Equal(at(utc, 2024, time.July, 15, 9, 0)), "got %s", next)
}

func TestRepeatNext_CadenceFromPreviousTarget(t *testing.T) {
	utc := time.UTC
	s := Repeat{Every: 10 * time.Minute}
	prev := at(utc, 2024, time.June, 10, 9, 0)

	// After a run the cadence anchors on the previous target, not on the
	// completion instant.
	next := s.Next(NextInput{
		Now:      at(utc, 2024, time.June, 10, 9, 3),
		JustRan:  true,
		PrevNext: prev,
	})
	require.True(t, next.Equal(prev.Add(10*time.Minute)), "got %s", next)

	// Without a previous target it falls back to now.
	fresh := s.Next(NextInput{Now: at(utc, 2024, time.June, 10, 9, 3)})
	require.True(t, fresh.Equal(at(utc, 2024, time.June, 10, 9, 13)), "got %s", fresh)
}

func TestOneShotNext(t *testing.T) {
	utc := time.UTC
	date, err := time.Parse("2006-01-02", "2024-06-12")
	require.NoError(t, err)
	s := OneShot{Date: date}
	slots := []ClockTime{{Hour: 23, Minute: 59}}

	future := s.Next(NextInput{Now: at(utc, 2024, time.June, 10, 8, 0), Loc: utc, Slots: slots})
	require.True(t, future.Equal(at(utc, 2024, time.June, 12, 23, 59)), "got %s", future)

	ran := s.Next(NextInput{Now: at(utc, 2024, time.June, 10, 8, 0), Loc: utc, Slots: slots, JustRan: true})
	require.True(t, ran.IsZero())

	past := s.Next(NextInput{Now: at(utc, 2024, time.June, 14, 8, 0), Loc: utc, Slots: slots})
	require.True(t, past.IsZero())

	// A slot missed within the grace window still fires.
	graced := s.Next(NextInput{
		Now:   at(utc, 2024, time.June, 13, 0, 30),
		Loc:   utc,
		Slots: slots,
		Grace: 2 * time.Hour,
	})
	require.True(t, graced.Equal(at(utc, 2024, time.June, 12, 23, 59)), "got %s", graced)
}

func TestNeverNext_Zero(t *testing.T) {
	next := Never{}.Next(NextInput{Now: time.Now()})
	require.True(t, next.IsZero())
}

func TestParseClockTime(t *testing.T) {
	testCases := []struct {
		input   string
		want    ClockTime
		wantErr bool
	}{
		{"09:30", ClockTime{Hour: 9, Minute: 30}, false},
		{"23:59", ClockTime{Hour: 23, Minute: 59}, false},
		{"00:00", ClockTime{}, false},
		{" 7:05 ", ClockTime{Hour: 7, Minute: 5}, false},
		{"24:00", ClockTime{}, true},
		{"12:60", ClockTime{}, true},
		{"9am", ClockTime{}, true},
		{"12", ClockTime{}, true},
		{"aa:bb", ClockTime{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseClockTime(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestIsoWeekday(t *testing.T) {
	require.Equal(t, 1, isoWeekday(at(time.UTC, 2024, time.June, 10, 0, 0))) // Monday
	require.Equal(t, 7, isoWeekday(at(time.UTC, 2024, time.June, 9, 0, 0)))  // Sunday
}

func TestDaysInMonth(t *testing.T) {
	require.Equal(t, 29, daysInMonth(2024, time.February))
	require.Equal(t, 28, daysInMonth(2023, time.February))
	require.Equal(t, 31, daysInMonth(2024, time.December))
	require.Equal(t, 30, daysInMonth(2024, time.April))
}
