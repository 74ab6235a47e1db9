package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

type RecurrenceType string

const (
	RecurrenceNone     RecurrenceType = "none"
	RecurrenceDaily    RecurrenceType = "daily"
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
)

func ParseRecurrenceType(s string) (RecurrenceType, error) {
	switch t := RecurrenceType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return RecurrenceNone, nil
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
		return t, nil
	default:
		return "", fmt.Errorf("unknown recurrence type %q", s)
	}
}

// Recurrence describes how a parent schedule repeats.
type Recurrence struct {
	Type    RecurrenceType
	EndDate *time.Time
	Days    Weekdays
}

func (r Recurrence) IsNone() bool {
	return r.Type == "" || r.Type == RecurrenceNone
}

// Weekdays is an ordered set of weekdays, serialized as lowercase English
// names in Monday-first order.
type Weekdays []time.Weekday

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

func ParseWeekdays(names []string) (Weekdays, error) {
	out := make(Weekdays, 0, len(names))
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out.normalize(), nil
}

func (w Weekdays) Contains(d time.Weekday) bool {
	return slices.Contains(w, d)
}

// normalize sorts Monday first and drops duplicates.
func (w Weekdays) normalize() Weekdays {
	out := slices.Clone(w)
	slices.SortFunc(out, func(a, b time.Weekday) int {
		return mondayIndex(a) - mondayIndex(b)
	})
	return slices.Compact(out)
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func (w Weekdays) Names() []string {
	norm := w.normalize()
	out := make([]string, len(norm))
	for i, d := range norm {
		out[i] = strings.ToLower(d.String())
	}
	return out
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Names())
}

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	parsed, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
