package sched

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(Config{Logger: log.New(io.Discard, "", 0)})
	require.NoError(t, err)
	return s
}

func noopTask(ctx context.Context, args Args) error { return nil }

func TestBuilder_RejectedSpecs(t *testing.T) {
	testCases := []struct {
		name  string
		build func(s *Scheduler) (*Job, error)
	}{
		{"unknown interval", func(s *Scheduler) (*Job, error) {
			return s.Every("fortnight").Do(noopTask, nil)
		}},
		{"hour out of range", func(s *Scheduler) (*Job, error) {
			return s.Every("day").At("25:00").Do(noopTask, nil)
		}},
		{"clock without colon", func(s *Scheduler) (*Job, error) {
			return s.Every("day").At("9am").Do(noopTask, nil)
		}},
		{"empty At", func(s *Scheduler) (*Job, error) {
			return s.Every("day").At().Do(noopTask, nil)
		}},
		{"monthly without strict choice", func(s *Scheduler) (*Job, error) {
			return s.Every("31st").At("09:00").Do(noopTask, nil)
		}},
		{"monthly missing At", func(s *Scheduler) (*Job, error) {
			return s.Every("15th").StrictDate(true).Do(noopTask, nil)
		}},
		{"one-shot missing At", func(s *Scheduler) (*Job, error) {
			return s.On("2030-01-15").Do(noopTask, nil)
		}},
		{"holiday literal", func(s *Scheduler) (*Job, error) {
			return s.Every("holiday").At("09:00").Do(noopTask, nil)
		}},
		{"zeroth day of month", func(s *Scheduler) (*Job, error) {
			return s.Every("0th").StrictDate(true).At("09:00").Do(noopTask, nil)
		}},
		{"strict on non-monthly", func(s *Scheduler) (*Job, error) {
			return s.Every("day").StrictDate(true).At("09:00").Do(noopTask, nil)
		}},
		{"negative seconds", func(s *Scheduler) (*Job, error) {
			return s.Every(-5).Do(noopTask, nil)
		}},
		{"zero duration", func(s *Scheduler) (*Job, error) {
			return s.Every(time.Duration(0)).Do(noopTask, nil)
		}},
		{"unsupported spec type", func(s *Scheduler) (*Job, error) {
			return s.Every(struct{}{}).Do(noopTask, nil)
		}},
		{"unknown timezone", func(s *Scheduler) (*Job, error) {
			return s.Every("day").Timezone("Mars/Olympus").Do(noopTask, nil)
		}},
		{"nil callable", func(s *Scheduler) (*Job, error) {
			return s.Every("day").At("09:00").Do(nil, nil)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build(newTestScheduler(t))
			require.Error(t, err)
			var bad *BadScheduleError
			require.ErrorAs(t, err, &bad)
		})
	}
}

func TestBuilder_AcceptedSpecs(t *testing.T) {
	testCases := []struct {
		name  string
		build func(s *Scheduler) (*Job, error)
		kind  string
	}{
		{"duration", func(s *Scheduler) (*Job, error) {
			return s.Every(30 * time.Second).Do(noopTask, nil)
		}, "repeat"},
		{"int seconds", func(s *Scheduler) (*Job, error) {
			return s.Every(30).Do(noopTask, nil)
		}, "repeat"},
		{"float seconds", func(s *Scheduler) (*Job, error) {
			return s.Every(2.5).Do(noopTask, nil)
		}, "repeat"},
		{"day class", func(s *Scheduler) (*Job, error) {
			return s.Every("day").At("09:00").Do(noopTask, nil)
		}, "day-class"},
		{"weekday name", func(s *Scheduler) (*Job, error) {
			return s.Every("tuesday").At("09:00").Do(noopTask, nil)
		}, "day-class"},
		{"business day", func(s *Scheduler) (*Job, error) {
			return s.Every("businessday").At("09:00").Do(noopTask, nil)
		}, "day-class"},
		{"end of month", func(s *Scheduler) (*Job, error) {
			return s.Every("eom-businessday").At("17:00").Do(noopTask, nil)
		}, "day-class"},
		{"monthly", func(s *Scheduler) (*Job, error) {
			return s.Every("22nd").StrictDate(false).At("09:00").Do(noopTask, nil)
		}, "monthly"},
		{"one-shot date", func(s *Scheduler) (*Job, error) {
			return s.On("2030-01-15").At("09:30").Do(noopTask, nil)
		}, "one-shot"},
		{"never", func(s *Scheduler) (*Job, error) {
			return s.Every("never").Do(noopTask, nil)
		}, "never"},
		{"on-demand alias", func(s *Scheduler) (*Job, error) {
			return s.Every("on-demand").Do(noopTask, nil)
		}, "never"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			j, err := tc.build(newTestScheduler(t))
			require.NoError(t, err)
			require.Equal(t, tc.kind, j.Schedule().Kind())
		})
	}
}

func TestBuilder_DayClassDefaultsSlotToRegistrationMinute(t *testing.T) {
	s := newTestScheduler(t)

	before := time.Now()
	j, err := s.Every("day").Do(noopTask, nil)
	require.NoError(t, err)
	after := time.Now()

	at, ok := j.View().At.(string)
	require.True(t, ok)
	want := map[string]bool{
		ClockTime{Hour: before.Hour(), Minute: before.Minute()}.String(): true,
		ClockTime{Hour: after.Hour(), Minute: after.Minute()}.String():   true,
	}
	require.True(t, want[at], "slot %s not at registration minute", at)
}

func TestBuilder_RepeatIgnoresSlots(t *testing.T) {
	s := newTestScheduler(t)

	j, err := s.Every(time.Hour).At("09:00").Do(noopTask, nil)
	require.NoError(t, err)
	require.Nil(t, j.View().At)
}

func TestBuilder_PastOneShotNeverRuns(t *testing.T) {
	s := newTestScheduler(t)

	ran := false
	j, err := s.On("2024-06-09").At("23:59").Do(func(ctx context.Context, args Args) error {
		ran = true
		return nil
	}, nil)
	require.NoError(t, err)
	require.True(t, j.NextRun().IsZero())

	s.Check()

	require.False(t, ran)
	require.Empty(t, s.Jobs(), "expired one-shot should be dropped")
}

func TestBuilder_TimezonePinsSlots(t *testing.T) {
	s := newTestScheduler(t)
	ny := mustLoc(t, "America/New_York")

	j, err := s.Every("day").At("23:59").Timezone("America/New_York").Do(noopTask, nil)
	require.NoError(t, err)

	view := j.View()
	require.NotNil(t, view.TZName)
	require.Equal(t, "America/New_York", *view.TZName)

	next := j.NextRun().In(ny)
	require.Equal(t, 23, next.Hour())
	require.Equal(t, 59, next.Minute())
}

type stubSchedule struct {
	next time.Time
}

func (s stubSchedule) Next(NextInput) time.Time { return s.next }
func (s stubSchedule) Kind() string             { return "stub" }
func (s stubSchedule) Interval() any            { return "stub" }

func TestBuilder_ExternalScheduleClaimsSpecFirst(t *testing.T) {
	s := newTestScheduler(t)
	fire := time.Now().Add(time.Hour)
	s.RegisterExternalSchedule(func(every any) (Schedule, bool) {
		if every == "@stub" {
			return stubSchedule{next: fire}, true
		}
		return nil, false
	})

	j, err := s.Every("@stub").Do(noopTask, nil)
	require.NoError(t, err)
	require.Equal(t, "stub", j.Schedule().Kind())
	require.True(t, j.NextRun().Equal(fire))

	// Unclaimed specs still resolve through the built-in grammar.
	builtin, err := s.Every("day").At("09:00").Do(noopTask, nil)
	require.NoError(t, err)
	require.Equal(t, "day-class", builtin.Schedule().Kind())
}

func TestBuilder_EveryCalOverridesSchedulerCalendar(t *testing.T) {
	s := newTestScheduler(t)
	utc := time.UTC

	j, err := s.EveryCal("businessday", holidaysOn("2020-04-10")).At("09:00").Do(noopTask, nil)
	require.NoError(t, err)

	dc, ok := j.Schedule().(DayClass)
	require.True(t, ok)
	require.False(t, dc.runnableOn(at(utc, 2020, time.April, 10, 0, 0), j.calendar))
	require.True(t, dc.runnableOn(at(utc, 2020, time.April, 9, 0, 0), j.calendar))
}

func TestSignatureHash_StableAcrossSchedulers(t *testing.T) {
	a, err := newTestScheduler(t).Every("day").At("09:00").Do(noopTask, Args{"region": "us"})
	require.NoError(t, err)
	b, err := newTestScheduler(t).Every("day").At("09:00").Do(noopTask, Args{"region": "us"})
	require.NoError(t, err)

	require.Equal(t, a.SignatureHash(), b.SignatureHash())
	require.Len(t, a.SignatureHash(), 40)
}

func TestSignatureHash_ChangesWithArgsAndSlots(t *testing.T) {
	base, err := newTestScheduler(t).Every("day").At("09:00").Do(noopTask, Args{"region": "us"})
	require.NoError(t, err)

	otherArgs, err := newTestScheduler(t).Every("day").At("09:00").Do(noopTask, Args{"region": "eu"})
	require.NoError(t, err)
	require.NotEqual(t, base.SignatureHash(), otherArgs.SignatureHash())

	otherSlot, err := newTestScheduler(t).Every("day").At("10:00").Do(noopTask, Args{"region": "us"})
	require.NoError(t, err)
	require.NotEqual(t, base.SignatureHash(), otherSlot.SignatureHash())
}
