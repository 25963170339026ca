// Package calendars provides ready-made holiday calendars for the
// scheduler's holiday-aware day classes, backed by rickar/cal holiday
// definitions.
package calendars

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/aa"
	"github.com/rickar/cal/v2/us"
)

// Calendar adapts a business calendar to the sched.HolidayCalendar
// interface. A date counts as a holiday when it is the actual or the
// observed occurrence.
type Calendar struct {
	bc *cal.BusinessCalendar
}

// Contains reports whether the given date is a holiday.
func (c *Calendar) Contains(date time.Time) bool {
	actual, observed, _ := c.bc.IsHoliday(date)
	return actual || observed
}

// New builds a calendar from explicit holiday definitions.
func New(holidays ...*cal.Holiday) *Calendar {
	bc := cal.NewBusinessCalendar()
	bc.AddHoliday(holidays...)
	return &Calendar{bc: bc}
}

// NewUS returns the US federal holiday set.
func NewUS() *Calendar {
	return New(us.Holidays...)
}

// TradingOptions tweaks the trading calendar.
type TradingOptions struct {
	// GoodFriday adds Good Friday, a market holiday that is not a
	// federal one.
	GoodFriday bool
}

// NewUSTrading returns the US market holiday set: the federal set
// minus Columbus Day and Veterans Day, when the markets stay open.
func NewUSTrading(opts TradingOptions) *Calendar {
	bc := cal.NewBusinessCalendar()
	for _, h := range us.Holidays {
		if h == us.ColumbusDay || h == us.VeteransDay {
			continue
		}
		bc.AddHoliday(h)
	}
	if opts.GoodFriday {
		bc.AddHoliday(aa.GoodFriday)
	}
	return &Calendar{bc: bc}
}

// Dates builds a calendar from fixed ISO dates ("2006-01-02"). Each
// date is a holiday in its own year only.
func Dates(days ...string) (*Calendar, error) {
	bc := cal.NewBusinessCalendar()
	for _, d := range days {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("invalid calendar date %q: %w", d, err)
		}
		bc.AddHoliday(&cal.Holiday{
			Name:      d,
			Type:      cal.ObservancePublic,
			Month:     t.Month(),
			Day:       t.Day(),
			StartYear: t.Year(),
			EndYear:   t.Year(),
			Func:      cal.CalcDayOfMonth,
		})
	}
	return &Calendar{bc: bc}, nil
}
