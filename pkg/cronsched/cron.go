// Package cronsched adds cron-expression schedules to a scheduler as
// an external variant; the core interval grammar stays cron-free.
//
//	s.RegisterExternalSchedule(cronsched.Matcher)
//	s.Every("*/5 9-17 * * 1-5").Do(fn, nil)
package cronsched

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskmill/taskmill/pkg/sched"
)

// parser accepts the standard five fields: minute, hour, day-of-month,
// month, day-of-week.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cron fires per a five-field cron expression.
type Cron struct {
	expr     string
	schedule cron.Schedule
}

// Parse builds a Cron schedule from a five-field expression.
func Parse(expr string) (*Cron, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &Cron{expr: expr, schedule: schedule}, nil
}

func (c *Cron) Kind() string { return "cron" }

func (c *Cron) Interval() any { return c.expr }

// Next returns the first firing strictly after now. Cron instants are
// exact, so the startup grace window and time-of-day slots do not
// apply.
func (c *Cron) Next(in sched.NextInput) time.Time {
	now := in.Now
	if in.Loc != nil {
		now = now.In(in.Loc)
	}
	return c.schedule.Next(now)
}

// Matcher claims schedule specs that parse as five-field cron
// expressions; everything else falls through to the built-in grammar.
func Matcher(every any) (sched.Schedule, bool) {
	expr, ok := every.(string)
	if !ok || len(strings.Fields(expr)) != 5 {
		return nil, false
	}
	c, err := Parse(expr)
	if err != nil {
		return nil, false
	}
	return c, true
}
