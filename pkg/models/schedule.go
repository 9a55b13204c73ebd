package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a standard 5-field cron expression (minute hour day month weekday).
// Descriptors such as "@hourly" are accepted too.
func ParseSchedule(expression string) (cron.Schedule, error) {
	return scheduleParser.Parse(expression)
}

// NextRun returns the first activation of expression strictly after reference.
func NextRun(expression string, reference time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expression)
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(reference), nil
}
