package availability

import "time"

// AvailableSlots returns slot start times within [windowStart, windowEnd)
// where a booking of length duration overlaps none of busy and does not
// start before now.
//
// All times are expected to be in the same location.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if FirstConflict(Interval{Start: t, End: t.Add(duration)}, busy) < 0 {
			slots = append(slots, t)
		}
	}
	return slots
}

// DayWindow combines day's calendar date with the HH:MM clock values in
// loc.
func DayWindow(day time.Time, from, to ClockTime, loc *time.Location) Interval {
	y, m, d := day.In(loc).Date()
	return Interval{
		Start: time.Date(y, m, d, from.Hour, from.Minute, 0, 0, loc),
		End:   time.Date(y, m, d, to.Hour, to.Minute, 0, 0, loc),
	}
}
