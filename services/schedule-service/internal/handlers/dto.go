package handlers

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

type scheduleResponse struct {
	ID                string   `json:"id"`
	TenantID          int64    `json:"tenant_id"`
	ProviderID        int64    `json:"provider_id"`
	UserID            int64    `json:"user_id"`
	CategoryID        int64    `json:"category_id"`
	ProductID         int64    `json:"product_id"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	Status            string   `json:"status"`
	ServicePrice      *int64   `json:"service_price"`
	Notes             string   `json:"notes,omitempty"`
	RecurrenceType    string   `json:"recurrence_type"`
	RecurrenceEndDate string   `json:"recurrence_end_date,omitempty"`
	RecurrenceDays    []string `json:"recurrence_days,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
	CreatedByID       int64    `json:"created_by_id,omitempty"`
	UpdatedByID       int64    `json:"updated_by_id,omitempty"`
}

func toScheduleResponse(s model.Schedule) scheduleResponse {
	out := scheduleResponse{
		ID:             s.ID,
		TenantID:       s.TenantID,
		ProviderID:     s.ProviderID,
		UserID:         s.UserID,
		CategoryID:     s.CategoryID,
		ProductID:      s.ProductID,
		StartDate:      formatTime(s.Start),
		EndDate:        formatTime(s.End),
		Status:         string(s.Status),
		ServicePrice:   s.ServicePrice,
		Notes:          s.Notes,
		RecurrenceType: string(model.RecurrenceNone),
		CreatedAt:      formatTime(s.CreatedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
		CreatedByID:    s.CreatedByID,
		UpdatedByID:    s.UpdatedByID,
	}
	if !s.Recurrence.IsNone() {
		out.RecurrenceType = string(s.Recurrence.Type)
		if s.Recurrence.EndDate != nil {
			out.RecurrenceEndDate = formatTime(*s.Recurrence.EndDate)
		}
		if len(s.Recurrence.Days) > 0 {
			out.RecurrenceDays = s.Recurrence.Days.Names()
		}
	}
	return out
}

func toScheduleList(in []model.Schedule) []scheduleResponse {
	out := make([]scheduleResponse, 0, len(in))
	for _, s := range in {
		out = append(out, toScheduleResponse(s))
	}
	return out
}

type instanceResponse struct {
	ID               string `json:"id"`
	ParentScheduleID string `json:"parent_schedule_id"`
	InstanceDate     string `json:"instance_date"`
	Status           string `json:"status"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func toInstanceResponse(in model.RecurringInstance) instanceResponse {
	return instanceResponse{
		ID:               in.ID,
		ParentScheduleID: in.ParentID,
		InstanceDate:     formatTime(in.InstanceDate),
		Status:           string(in.Status),
		Notes:            in.Notes,
		CreatedAt:        formatTime(in.CreatedAt),
	}
}

type calendarDayResponse struct {
	Date      string             `json:"date"`
	Schedules []scheduleResponse `json:"schedules"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type createScheduleRequest struct {
	TenantID          int64    `json:"tenant_id"`
	ProviderID        int64    `json:"provider_id"`
	UserID            int64    `json:"user_id"`
	CategoryID        int64    `json:"category_id"`
	ProductID         int64    `json:"product_id"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	ServicePrice      *int64   `json:"service_price"`
	Notes             string   `json:"notes"`
	RecurrenceType    string   `json:"recurrence_type"`
	RecurrenceEndDate string   `json:"recurrence_end_date"`
	RecurrenceDays    []string `json:"recurrence_days"`
}

type updateScheduleRequest struct {
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
	Status       *string `json:"status"`
	CategoryID   *int64  `json:"category_id"`
	ProductID    *int64  `json:"product_id"`
	ServicePrice *int64  `json:"service_price"`
	Notes        *string `json:"notes"`
}

type bulkScheduleRequest struct {
	TenantID     int64    `json:"tenant_id"`
	ProviderID   int64    `json:"provider_id"`
	UserID       int64    `json:"user_id"`
	CategoryID   int64    `json:"category_id"`
	ProductID    int64    `json:"product_id"`
	DaysOfWeek   []string `json:"days_of_week"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	ServicePrice *int64   `json:"service_price"`
}

type availabilityRequest struct {
	ProviderID int64  `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type availabilityResponse struct {
	Available  bool   `json:"available"`
	ProviderID int64  `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}
