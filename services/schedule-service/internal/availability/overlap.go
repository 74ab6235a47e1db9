package availability

import "time"

// Interval is the half-open window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether a and b share any instant. Touching intervals
// (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// FirstConflict returns the index of the first busy interval overlapping
// candidate, or -1.
func FirstConflict(candidate Interval, busy []Interval) int {
	for i, b := range busy {
		if Overlaps(candidate, b) {
			return i
		}
	}
	return -1
}
