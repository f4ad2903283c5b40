// Package recurrence decides whether a trigger schedule is due at a given
// UTC minute. The default cadence is daily at the schedule's minute-of-day
// in the user's timezone; a cron expression overrides it.
package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

const minutesPerDay = 24 * 60

// Evaluator evaluates schedule due-ness at minute granularity.
type Evaluator struct {
	parser cron.Parser
}

// NewEvaluator creates an Evaluator with standard five-field cron grammar.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Due reports whether s fires at minuteUTC. minuteUTC must already be
// truncated to the minute. Errors indicate a malformed schedule (bad
// timezone, bad cron expression, minute out of range); the caller skips
// the schedule and keeps the tick going.
func (e *Evaluator) Due(s domain.TriggerSchedule, minuteUTC time.Time) (bool, error) {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, fmt.Errorf("load timezone %s: %w", tz, err)
	}
	local := minuteUTC.In(loc)

	if s.CronExpression != "" {
		sched, err := e.parser.Parse(s.CronExpression)
		if err != nil {
			return false, fmt.Errorf("parse cron %q: %w", s.CronExpression, err)
		}
		// Next is strictly after its argument; stepping back one second
		// makes a fire at exactly this minute observable.
		next := sched.Next(local.Add(-time.Second))
		return next.Equal(local), nil
	}

	if s.TriggerMinute < 0 || s.TriggerMinute >= minutesPerDay {
		return false, fmt.Errorf("trigger minute %d out of range", s.TriggerMinute)
	}
	return local.Hour()*60+local.Minute() == s.TriggerMinute, nil
}
