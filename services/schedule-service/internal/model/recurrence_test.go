package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWeekdaysJSONOrdered(t *testing.T) {
	w, err := ParseWeekdays([]string{"Friday", "monday", "friday", "Sunday"})
	if err != nil {
		t.Fatalf("ParseWeekdays: %v", err)
	}
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["monday","friday","sunday"]` {
		t.Fatalf("unexpected json %s", b)
	}

	var back Weekdays
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Contains(time.Sunday) || back.Contains(time.Tuesday) {
		t.Fatalf("unexpected set %v", back)
	}
	if _, err := ParseWeekdays([]string{"funday"}); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

func TestScheduleBlocks(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := Schedule{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Status: StatusActive}

	if !s.Blocks(day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour+30*time.Minute)) {
		t.Fatal("overlapping window should be blocked")
	}
	if s.Blocks(day.Add(10*time.Hour), day.Add(11*time.Hour)) {
		t.Fatal("touching window must not be blocked")
	}
	s.Status = StatusCancelled
	if s.Blocks(day.Add(9*time.Hour), day.Add(10*time.Hour)) {
		t.Fatal("cancelled schedule must not block")
	}
	s.Status = StatusActive
	now := day
	s.DeletedAt = &now
	if s.Blocks(day.Add(9*time.Hour), day.Add(10*time.Hour)) {
		t.Fatal("deleted schedule must not block")
	}
}

func TestParseRecurrenceType(t *testing.T) {
	if got, err := ParseRecurrenceType(""); err != nil || got != RecurrenceNone {
		t.Fatalf("empty should mean none, got %q %v", got, err)
	}
	if _, err := ParseRecurrenceType("yearly"); err == nil {
		t.Fatal("expected error for yearly")
	}
}
