package scheduling

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

const (
	TopicScheduleCreated   = "schedule.created.v1"
	TopicScheduleUpdated   = "schedule.updated.v1"
	TopicScheduleCancelled = "schedule.cancelled.v1"
	TopicScheduleDeleted   = "schedule.deleted.v1"
	TopicInstanceCancelled = "schedule.instance.cancelled.v1"
)

// Event is written to the outbox in the same transaction as the change
// it describes.
type Event struct {
	Topic       string
	AggregateID string
	Payload     any
}

type SchedulePayload struct {
	ScheduleID     string    `json:"schedule_id"`
	TenantID       int64     `json:"tenant_id"`
	ProviderID     int64     `json:"provider_id"`
	UserID         int64     `json:"user_id"`
	ProductID      int64     `json:"product_id"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Status         string    `json:"status"`
	RecurrenceType string    `json:"recurrence_type"`
	Instances      int       `json:"instances,omitempty"`
	ActorID        int64     `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type InstancePayload struct {
	ScheduleID   string    `json:"schedule_id"`
	InstanceID   string    `json:"instance_id"`
	TenantID     int64     `json:"tenant_id"`
	InstanceDate string    `json:"instance_date"`
	ActorID      int64     `json:"actor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func scheduleEvent(topic string, s model.Schedule, instances int, actor Actor, now time.Time) Event {
	return Event{
		Topic:       topic,
		AggregateID: s.ID,
		Payload: SchedulePayload{
			ScheduleID:     s.ID,
			TenantID:       s.TenantID,
			ProviderID:     s.ProviderID,
			UserID:         s.UserID,
			ProductID:      s.ProductID,
			StartTime:      s.Start.UTC().Format(time.RFC3339),
			EndTime:        s.End.UTC().Format(time.RFC3339),
			Status:         string(s.Status),
			RecurrenceType: string(s.Recurrence.Type),
			Instances:      instances,
			ActorID:        actor.UserID,
			OccurredAt:     now.UTC(),
		},
	}
}
