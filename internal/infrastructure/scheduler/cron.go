package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule schedules a job from a standard 5-field cron expression
// (minute hour day-of-month month day-of-week). Descriptors such as
// "@monthly" and "@every 1h" are accepted too.
// Examples:
//   - "0 2 1 * *"   - 02:00 on the 1st of every month
//   - "0 3 * 7 *"   - 03:00 every day of July
//   - "*/15 * * * *" - every 15 minutes
type CronSchedule struct {
	raw      string
	schedule cron.Schedule
	location *time.Location
}

// ParseCron parses expr. Times are evaluated in loc (UTC when nil).
func ParseCron(expr string, loc *time.Location) (*CronSchedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronSchedule{raw: expr, schedule: s, location: loc}, nil
}

// MustParseCron is like ParseCron but panics on error.
func MustParseCron(expr string, loc *time.Location) *CronSchedule {
	s, err := ParseCron(expr, loc)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the first activation strictly after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Location returns the timezone the expression is evaluated in.
func (s *CronSchedule) Location() *time.Location {
	return s.location
}

// String returns the original expression.
func (s *CronSchedule) String() string {
	return s.raw
}
