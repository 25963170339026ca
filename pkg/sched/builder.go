package sched

import (
	"regexp"
	"strconv"
	"time"
)

var monthlyRe = regexp.MustCompile(`(?i)^(\d{1,2})(st|nd|rd|th)$`)

// Builder assembles one job registration. Obtain one from Scheduler.Every,
// Scheduler.EveryCal or Scheduler.On, chain the option calls and finish with
// Do or DoParallel. The first error sticks and is returned by Do, so chains
// stay unconditional.
type Builder struct {
	s        *Scheduler
	every    any
	calendar HolidayCalendar
	slots    []ClockTime
	atSet    bool
	strict   *bool
	tzname   string
	loc      *time.Location
	err      error
}

// Every starts a job registration. Accepted specs:
//
//	time.Duration, int, int64, float64  repeat interval (numbers are seconds)
//	"2006-01-02"                        one-shot on that date
//	"1st".."31st"                       monthly, needs StrictDate
//	day class names                     "day", "monday".."sunday", "weekday",
//	                                    "weekend", "businessday",
//	                                    "trading-holiday", "eom",
//	                                    "eom-weekday", "eom-businessday"
//	"never", "on-demand"                registered but only run via Rerun
//
// Specs claimed by a registered external schedule are resolved by it first.
func (s *Scheduler) Every(every any) *Builder {
	return &Builder{s: s, every: every}
}

// EveryCal is Every with a holiday calendar attached, overriding the
// scheduler-wide one. The calendar drives "businessday", "trading-holiday"
// and "eom-businessday" day classes.
func (s *Scheduler) EveryCal(every any, cal HolidayCalendar) *Builder {
	return &Builder{s: s, every: every, calendar: cal}
}

// On is a readable alias of Every for one-shot dates:
//
//	s.On("2026-01-15").At("09:30").Do(task, nil)
func (s *Scheduler) On(date string) *Builder {
	return s.Every(date)
}

func (b *Builder) setErr(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// At sets the time-of-day slots, each "HH:MM" on a 24-hour clock. Repeated
// calls accumulate. Required for one-shot and monthly schedules; day classes
// without At default to the registration wall-clock minute; repeat and
// never schedules ignore slots.
func (b *Builder) At(times ...string) *Builder {
	if len(times) == 0 {
		return b.setErr(badSchedule("At needs at least one HH:MM time"))
	}
	for _, raw := range times {
		slot, err := ParseClockTime(raw)
		if err != nil {
			return b.setErr(err)
		}
		b.slots = append(b.slots, slot)
	}
	b.atSet = true
	return b
}

// StrictDate controls monthly behavior for short months: strict skips a
// month without the scheduled day, non-strict clamps to the month's last
// day. Mandatory for monthly schedules, rejected for all others.
func (b *Builder) StrictDate(strict bool) *Builder {
	b.strict = &strict
	return b
}

// Timezone pins slot resolution to the named IANA zone instead of the
// scheduler's zone.
func (b *Builder) Timezone(name string) *Builder {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return b.setErr(badSchedule("unknown timezone %q", name))
	}
	b.tzname = name
	b.loc = loc
	return b
}

// Do validates the chain and registers the job. The callable runs inline on
// the scheduler's check loop.
func (b *Builder) Do(fn TaskFunc, args Args) (*Job, error) {
	return b.commit(fn, args, false)
}

// DoParallel is Do for callables that should run on their own goroutine so
// a slow run never delays other due jobs.
func (b *Builder) DoParallel(fn TaskFunc, args Args) (*Job, error) {
	return b.commit(fn, args, true)
}

func (b *Builder) commit(fn TaskFunc, args Args, parallel bool) (*Job, error) {
	if b.err != nil {
		return nil, b.err
	}
	if fn == nil {
		return nil, badSchedule("callable must not be nil")
	}

	schedule, err := b.s.resolveSchedule(b.every, b.strict)
	if err != nil {
		return nil, err
	}
	if b.strict != nil {
		if _, ok := schedule.(Monthly); !ok {
			return nil, badSchedule("StrictDate applies only to monthly day-of-month schedules")
		}
	}

	loc := b.s.loc
	if b.loc != nil {
		loc = b.loc
	}
	calendar := b.s.calendar
	if b.calendar != nil {
		calendar = b.calendar
	}

	slots := b.slots
	switch schedule.(type) {
	case OneShot, Monthly:
		if !b.atSet {
			return nil, badSchedule("%s schedules need At(\"HH:MM\")", schedule.Kind())
		}
	case DayClass:
		if !b.atSet {
			now := time.Now().In(loc)
			slots = []ClockTime{{Hour: now.Hour(), Minute: now.Minute()}}
		}
	case Repeat, Never:
		slots = nil
	}

	j := &Job{
		id:                b.s.nextJobID(),
		fn:                fn,
		fnName:            functionName(fn),
		src:               functionSource(fn),
		args:              args,
		schedule:          schedule,
		slots:             slots,
		tzname:            b.tzname,
		loc:               loc,
		calendar:          calendar,
		parallel:          parallel,
		grace:             b.s.grace,
		record:            &RunRecord{},
		logger:            b.s.logger,
		fileLog:           b.s.fileLogger,
		genericErrHandler: b.s.onJobError,
	}
	j.computeSignatureHash()
	j.scheduleNext(false)
	b.s.register(j)
	return j, nil
}

// resolveSchedule maps a schedule spec to its variant. Externally
// registered schedules get first claim so they can shadow none of the
// built-in specs yet extend the accepted set.
func (s *Scheduler) resolveSchedule(every any, strict *bool) (Schedule, error) {
	for _, ext := range s.externals {
		if schedule, ok := ext(every); ok {
			return schedule, nil
		}
	}
	switch v := every.(type) {
	case time.Duration:
		if v <= 0 {
			return nil, badSchedule("repeat interval must be positive, got %v", v)
		}
		return Repeat{Every: v}, nil
	case int:
		return repeatSeconds(float64(v))
	case int64:
		return repeatSeconds(float64(v))
	case float64:
		return repeatSeconds(v)
	case string:
		return resolveNamedSchedule(v, strict)
	}
	return nil, badSchedule("unsupported schedule spec %T", every)
}

func repeatSeconds(secs float64) (Schedule, error) {
	if secs <= 0 {
		return nil, badSchedule("repeat interval must be positive, got %v seconds", secs)
	}
	return Repeat{Every: time.Duration(secs * float64(time.Second))}, nil
}

func resolveNamedSchedule(name string, strict *bool) (Schedule, error) {
	if date, err := time.Parse("2006-01-02", name); err == nil {
		return OneShot{Date: date}, nil
	}
	if m := monthlyRe.FindStringSubmatch(name); m != nil {
		day, _ := strconv.Atoi(m[1])
		if day < 1 || day > 31 {
			return nil, badSchedule("day of month must be between 1st and 31st, got %q", name)
		}
		if strict == nil {
			return nil, badSchedule("monthly schedule %q needs StrictDate(true) or StrictDate(false)", name)
		}
		return Monthly{Day: day, Strict: *strict}, nil
	}
	switch name {
	case "holiday":
		return nil, badSchedule(`"holiday" cannot be scheduled directly; use "weekend" or "trading-holiday" with a calendar`)
	case "never", "on-demand":
		return Never{}, nil
	}
	if isDayClass(name) {
		return DayClass{Class: name}, nil
	}
	return nil, badSchedule("unrecognized schedule %q", name)
}
