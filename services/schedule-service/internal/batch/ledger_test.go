package batch

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLedgerCounts(t *testing.T) {
	l := NewLedger()
	l.Created()
	l.Created()
	l.Conflict(3, "slot taken", map[string]string{"date": "2025-06-02"})
	l.Error(4, "provider not found", nil)
	l.Duplicate(5, "already imported", nil)

	if l.TotalRecords != 5 || l.NewRecords != 2 || l.Failed() != 3 {
		t.Fatalf("unexpected counts %+v", l)
	}
	if l.ConflictsFound[0].Row != 3 || l.ConflictsFound[0].Outcome != OutcomeConflict {
		t.Fatalf("unexpected conflict entry %+v", l.ConflictsFound[0])
	}
}

func TestEmptyLedgerEncodesEmptyLists(t *testing.T) {
	b, err := json.Marshal(NewLedger())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"errors":[]`) || !strings.Contains(string(b), `"conflicts_found":[]`) {
		t.Fatalf("expected empty lists, got %s", b)
	}
}
