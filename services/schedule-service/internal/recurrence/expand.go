// Package recurrence turns a recurrence rule into concrete occurrence
// start instants.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

var (
	ErrMissingEndDate   = errors.New("recurrence end date is required")
	ErrEndNotAfterStart = errors.New("recurrence end date must be after the start date")
	ErrTooManyInstances = errors.New("recurrence produces too many instances")
)

// Expand walks forward from start up to and including rule.EndDate and
// returns every occurrence. A weekday filter is applied before the type
// step: a filtered-out date advances by one day without producing an
// occurrence. Monthly steps keep start's day of month, clamped to the
// last day of shorter months.
//
// max bounds the number of occurrences; zero means unbounded.
func Expand(start time.Time, rule model.Recurrence, max int) ([]time.Time, error) {
	if rule.IsNone() {
		return nil, nil
	}
	if rule.EndDate == nil {
		return nil, ErrMissingEndDate
	}
	end := *rule.EndDate
	if !end.After(start) {
		return nil, ErrEndNotAfterStart
	}

	var out []time.Time
	current := start
	for !current.After(end) {
		if len(rule.Days) > 0 && !rule.Days.Contains(current.Weekday()) {
			current = current.AddDate(0, 0, 1)
			continue
		}
		if max > 0 && len(out) >= max {
			return nil, fmt.Errorf("%w (limit %d)", ErrTooManyInstances, max)
		}
		out = append(out, current)

		next, err := step(current, start.Day(), rule.Type)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return out, nil
}

func step(t time.Time, anchorDay int, typ model.RecurrenceType) (time.Time, error) {
	switch typ {
	case model.RecurrenceDaily:
		return t.AddDate(0, 0, 1), nil
	case model.RecurrenceWeekly:
		return t.AddDate(0, 0, 7), nil
	case model.RecurrenceBiweekly:
		return t.AddDate(0, 0, 14), nil
	case model.RecurrenceMonthly:
		return nextMonth(t, anchorDay), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported recurrence type %q", typ)
	}
}

// nextMonth moves t into the following month on anchorDay, or on that
// month's last day when it is shorter. Wall clock time is preserved.
func nextMonth(t time.Time, anchorDay int) time.Time {
	y, m, _ := t.Date()
	m++
	if m > time.December {
		m = time.January
		y++
	}
	day := min(anchorDay, daysIn(y, m, t.Location()))
	return time.Date(y, m, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	// day 0 of the next month is the last day of m
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
