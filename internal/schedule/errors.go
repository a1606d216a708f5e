package schedule

import "errors"

var (
	// ErrScheduleNotFound is returned when a schedule ID does not exist.
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("schedule: invalid")

	// ErrInvalidCron is returned when a cron expression is rejected.
	ErrInvalidCron = errors.New("schedule: invalid cron expression")
)
