// Package calendar buckets schedules into the days of a month.
package calendar

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

// MonthRange returns midnight of the first day of the month and midnight
// of the day after its last day, both in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (from, to time.Time, err error) {
	if month < time.January || month > time.December {
		return time.Time{}, time.Time{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid year %d", year)
	}
	from = time.Date(year, month, 1, 0, 0, 0, 0, loc)
	nextYear, nextMonth := year, month+1
	if nextMonth > time.December {
		nextYear, nextMonth = year+1, time.January
	}
	to = time.Date(nextYear, nextMonth, 1, 0, 0, 0, 0, loc)
	return from, to, nil
}

// Build returns one entry per day of the month in ascending order. A
// schedule lands on the day its start falls on in loc; schedules starting
// outside the month are ignored.
func Build(year int, month time.Month, loc *time.Location, schedules []model.Schedule) ([]model.CalendarDay, error) {
	from, to, err := MonthRange(year, month, loc)
	if err != nil {
		return nil, err
	}

	var days []model.CalendarDay
	index := map[int]int{}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		index[d.Day()] = len(days)
		days = append(days, model.CalendarDay{Date: d, Schedules: []model.Schedule{}})
	}

	for _, s := range schedules {
		start := s.Start.In(loc)
		if start.Before(from) || !start.Before(to) {
			continue
		}
		i := index[start.Day()]
		days[i].Schedules = append(days[i].Schedules, s)
	}
	return days, nil
}
