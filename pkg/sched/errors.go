package sched

import "fmt"

// ==========================================================================
// Error Types
// ==========================================================================

// BadScheduleError is returned by the builder for illegal schedule
// descriptions: unknown intervals, malformed time-of-day values, a Monthly
// schedule without StrictDate, or an unknown timezone.
type BadScheduleError struct {
	Reason string
}

func (e *BadScheduleError) Error() string {
	return fmt.Sprintf("bad schedule: %s", e.Reason)
}

// InvalidJobIDError is returned when a job id does not match any
// registered job.
type InvalidJobIDError struct {
	ID int
}

func (e *InvalidJobIDError) Error() string {
	return fmt.Sprintf("invalid job id: %d", e.ID)
}

// JobBusyError is returned by Rerun while the job is already running.
type JobBusyError struct {
	ID int
}

func (e *JobBusyError) Error() string {
	return fmt.Sprintf("job %d is already running", e.ID)
}

func badSchedule(format string, args ...any) error {
	return &BadScheduleError{Reason: fmt.Sprintf(format, args...)}
}
