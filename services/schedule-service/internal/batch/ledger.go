// Package batch holds the per-row outcome ledger shared by bulk creation
// and spreadsheet imports.
package batch

// Outcome of one row or day in a batch.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeConflict  Outcome = "conflict"
	OutcomeError     Outcome = "error"
)

type Entry struct {
	Row     int               `json:"row"`
	Outcome Outcome           `json:"outcome"`
	Reason  string            `json:"reason,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Ledger accumulates batch outcomes. A failed row never aborts the batch.
type Ledger struct {
	TotalRecords    int     `json:"total_records"`
	NewRecords      int     `json:"new_records"`
	DuplicatesFound []Entry `json:"duplicates_found"`
	ConflictsFound  []Entry `json:"conflicts_found"`
	Errors          []Entry `json:"errors"`
}

func NewLedger() *Ledger {
	return &Ledger{
		DuplicatesFound: []Entry{},
		ConflictsFound:  []Entry{},
		Errors:          []Entry{},
	}
}

func (l *Ledger) Created() {
	l.TotalRecords++
	l.NewRecords++
}

func (l *Ledger) Duplicate(row int, reason string, data map[string]string) {
	l.TotalRecords++
	l.DuplicatesFound = append(l.DuplicatesFound, Entry{Row: row, Outcome: OutcomeDuplicate, Reason: reason, Data: data})
}

func (l *Ledger) Conflict(row int, reason string, data map[string]string) {
	l.TotalRecords++
	l.ConflictsFound = append(l.ConflictsFound, Entry{Row: row, Outcome: OutcomeConflict, Reason: reason, Data: data})
}

func (l *Ledger) Error(row int, reason string, data map[string]string) {
	l.TotalRecords++
	l.Errors = append(l.Errors, Entry{Row: row, Outcome: OutcomeError, Reason: reason, Data: data})
}

// Failed is the number of rows that did not produce a record.
func (l *Ledger) Failed() int {
	return len(l.DuplicatesFound) + len(l.ConflictsFound) + len(l.Errors)
}
