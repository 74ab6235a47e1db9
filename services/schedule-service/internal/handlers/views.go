package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/importer"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

// CheckAvailability is public: it only reveals whether a window is free.
func (h *ScheduleHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.ProviderID <= 0 {
		badRequest(w, "provider_id is required")
		return
	}
	loc := h.svc.Location()
	day, err := time.ParseInLocation(time.DateOnly, req.Date, loc)
	if err != nil {
		badRequest(w, "invalid date, expected YYYY-MM-DD")
		return
	}
	from, err := availability.ParseClock(req.StartTime)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	to, err := availability.ParseClock(req.EndTime)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	window := availability.DayWindow(day, from, to, loc)
	ok, err := h.svc.IsAvailable(r.Context(), req.ProviderID, window.Start, window.End, "")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		Available:  ok,
		ProviderID: req.ProviderID,
		Date:       day.Format(time.DateOnly),
		StartTime:  from.String(),
		EndTime:    to.String(),
	})
}

func (h *ScheduleHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tenantID, err := parseID(r.PathValue("tenant_id"), "tenant_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	year, err := optionalInt(r, "year", 0)
	if err != nil || year == 0 {
		badRequest(w, "year is required")
		return
	}
	month, err := optionalInt(r, "month", 0)
	if err != nil || month == 0 {
		badRequest(w, "month is required")
		return
	}
	providerID, err := optionalID(r, "provider_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.RequireTenant(r.Context(), actor, tenantID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	days, err := h.svc.Calendar(r.Context(), tenantID, year, time.Month(month), providerID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out := make([]calendarDayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, calendarDayResponse{
			Date:      d.Date.Format(time.DateOnly),
			Schedules: toScheduleList(d.Schedules),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// ByProvider lists a provider's schedules across the tenants the caller
// can see.
func (h *ScheduleHandler) ByProvider(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	providerID, err := parseID(r.PathValue("provider_id"), "provider_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	from, to, err := optionalRange(r, h.svc.Location())
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	schedules, err := h.svc.ByProvider(r.Context(), actor.VisibleTenants(), providerID, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleList(schedules))
}

func (h *ScheduleHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tenantID, err := parseID(r.PathValue("tenant_id"), "tenant_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	days, err := optionalInt(r, "days", 7)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.RequireTenant(r.Context(), actor, tenantID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	schedules, err := h.svc.Upcoming(r.Context(), tenantID, days)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleList(schedules))
}

func (h *ScheduleHandler) FreeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID, err := parseID(q.Get("provider_id"), "provider_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	loc := h.svc.Location()
	day, err := time.ParseInLocation(time.DateOnly, q.Get("date"), loc)
	if err != nil {
		badRequest(w, "invalid date, expected YYYY-MM-DD")
		return
	}
	duration, err := optionalInt(r, "duration_minutes", 60)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	step, err := optionalInt(r, "slot_step_minutes", 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	from, to := availability.ClockTime{Hour: 8}, availability.ClockTime{Hour: 18}
	if raw := q.Get("workday_start"); raw != "" {
		if from, err = availability.ParseClock(raw); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if raw := q.Get("workday_end"); raw != "" {
		if to, err = availability.ParseClock(raw); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	slots, err := h.svc.FreeSlots(r.Context(), scheduling.FreeSlotsInput{
		ProviderID: providerID,
		Day:        day,
		Duration:   time.Duration(duration) * time.Minute,
		Step:       time.Duration(step) * time.Minute,
		From:       from,
		To:         to,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	type slot struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	out := make([]slot, 0, len(slots))
	for _, s := range slots {
		out = append(out, slot{
			StartTime: formatTime(s),
			EndTime:   formatTime(s.Add(time.Duration(duration) * time.Minute)),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"provider_id": providerID,
		"date":        day.Format(time.DateOnly),
		"slots":       out,
	})
}

func (h *ScheduleHandler) Export(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	tenantID, err := parseID(q.Get("tenant_id"), "tenant_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	format, err := importer.ParseFormat(q.Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	from, to, err := optionalRange(r, h.svc.Location())
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if from == nil || to == nil {
		badRequest(w, "start_date and end_date are required")
		return
	}
	providerID, err := optionalID(r, "provider_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.RequireTenant(r.Context(), actor, tenantID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	schedules, err := h.svc.ByDateRange(r.Context(), tenantID, *from, *to, providerID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	filename := fmt.Sprintf("schedules_%d_%s_%s.%s", tenantID,
		from.Format(time.DateOnly), to.Format(time.DateOnly), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := importer.Export(w, format, schedules, h.svc.Location()); err != nil {
		h.logger.Error("export failed", "tenant_id", tenantID, "err", err)
	}
}
