package runtime

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@hourly", "@every 90m"
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	sched, err := parser.Parse(schedule)
	if err == nil {
		return sched, nil
	}

	duration, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule as cron expression or duration: %w", err)
	}
	if duration < time.Second {
		return nil, fmt.Errorf("schedule interval %s is shorter than one second", duration)
	}
	return cron.ConstantDelaySchedule{Delay: duration}, nil
}

// NextRun computes the next run time of schedule after base.
func NextRun(schedule string, base time.Time) (time.Time, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse schedule %q: %w", schedule, err)
	}
	return sched.Next(base), nil
}
