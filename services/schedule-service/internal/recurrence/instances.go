package recurrence

import (
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

// Materialize expands parent's recurrence into instance records that
// inherit the parent's status.
func Materialize(parent model.Schedule, max int, now time.Time) ([]model.RecurringInstance, error) {
	dates, err := Expand(parent.Start, parent.Recurrence, max)
	if err != nil {
		return nil, err
	}
	out := make([]model.RecurringInstance, 0, len(dates))
	for _, d := range dates {
		out = append(out, model.RecurringInstance{
			ID:           uuid.NewString(),
			ParentID:     parent.ID,
			InstanceDate: d,
			Status:       parent.Status,
			CreatedAt:    now,
		})
	}
	return out, nil
}
