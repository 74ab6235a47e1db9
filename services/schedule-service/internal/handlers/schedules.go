package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/importer"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

type ScheduleHandler struct {
	svc       *scheduling.Service
	importer  *importer.Importer
	logger    *slog.Logger
	maxUpload int64
}

func NewScheduleHandler(svc *scheduling.Service, im *importer.Importer, logger *slog.Logger, maxUpload int64) *ScheduleHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ScheduleHandler{svc: svc, importer: im, logger: logger, maxUpload: maxUpload}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.TenantID <= 0 || req.ProviderID <= 0 || req.UserID <= 0 || req.CategoryID <= 0 || req.ProductID <= 0 {
		badRequest(w, "tenant_id, provider_id, user_id, category_id and product_id are required")
		return
	}
	if err := h.svc.RequireTenant(r.Context(), actor, req.TenantID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	loc := h.svc.Location()
	start, err := parseInstant(req.StartDate, "start_date", loc)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	end, err := parseInstant(req.EndDate, "end_date", loc)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rec, err := parseRecurrence(req, start, loc)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	sched, err := h.svc.Create(r.Context(), actor, scheduling.CreateInput{
		TenantID:     req.TenantID,
		ProviderID:   req.ProviderID,
		UserID:       req.UserID,
		CategoryID:   req.CategoryID,
		ProductID:    req.ProductID,
		Start:        start,
		End:          end,
		ServicePrice: req.ServicePrice,
		Notes:        strings.TrimSpace(req.Notes),
		Recurrence:   rec,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toScheduleResponse(sched))
}

// parseRecurrence builds the rule of a create request. A date-only end
// date includes that whole day and must be a later day than start.
func parseRecurrence(req createScheduleRequest, start time.Time, loc *time.Location) (model.Recurrence, error) {
	typ, err := model.ParseRecurrenceType(req.RecurrenceType)
	if err != nil {
		return model.Recurrence{}, err
	}
	rec := model.Recurrence{Type: typ}
	if rec.IsNone() {
		return rec, nil
	}
	if req.RecurrenceEndDate != "" {
		end, err := parseEndOfRange(req.RecurrenceEndDate, "recurrence_end_date", loc)
		if err != nil {
			return model.Recurrence{}, err
		}
		if day, derr := time.ParseInLocation(time.DateOnly, strings.TrimSpace(req.RecurrenceEndDate), loc); derr == nil {
			if !day.After(start.In(loc)) {
				return model.Recurrence{}, errors.New("recurrence_end_date must be after start_date")
			}
		}
		rec.EndDate = &end
	}
	if len(req.RecurrenceDays) > 0 {
		if rec.Days, err = model.ParseWeekdays(req.RecurrenceDays); err != nil {
			return model.Recurrence{}, err
		}
	}
	return rec, nil
}

// authorize loads the schedule named by the {id} path value and checks
// the caller may act on its tenant.
func (h *ScheduleHandler) authorize(w http.ResponseWriter, r *http.Request) (scheduling.Actor, model.Schedule, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return actor, model.Schedule{}, false
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeServiceError(w, r, h.logger, &scheduling.NotFoundError{Entity: "schedule"})
		return actor, model.Schedule{}, false
	}
	sched, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return actor, model.Schedule{}, false
	}
	if !actor.CanAccess(sched.TenantID) {
		writeServiceError(w, r, h.logger, scheduling.ErrForbidden)
		return actor, model.Schedule{}, false
	}
	return actor, sched, true
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, sched, ok := h.authorize(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleResponse(sched))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, sched, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req updateScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	loc := h.svc.Location()
	var in scheduling.UpdateInput
	if req.StartDate != nil {
		t, err := parseInstant(*req.StartDate, "start_date", loc)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		in.Start = &t
	}
	if req.EndDate != nil {
		t, err := parseInstant(*req.EndDate, "end_date", loc)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		in.End = &t
	}
	if req.Status != nil {
		st := model.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
		in.Status = &st
	}
	in.CategoryID = req.CategoryID
	in.ProductID = req.ProductID
	in.ServicePrice = req.ServicePrice
	in.Notes = req.Notes

	updated, err := h.svc.Update(r.Context(), actor, sched.ID, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleResponse(updated))
}

func (h *ScheduleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, sched, ok := h.authorize(w, r)
	if !ok {
		return
	}
	cancelled, err := h.svc.Cancel(r.Context(), actor, sched.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message":  "schedule cancelled",
		"schedule": toScheduleResponse(cancelled),
	})
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, sched, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor, sched.ID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Instances(w http.ResponseWriter, r *http.Request) {
	_, sched, ok := h.authorize(w, r)
	if !ok {
		return
	}
	instances, err := h.svc.Instances(r.Context(), sched.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out := make([]instanceResponse, 0, len(instances))
	for _, in := range instances {
		out = append(out, toInstanceResponse(in))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) CancelInstance(w http.ResponseWriter, r *http.Request) {
	actor, sched, ok := h.authorize(w, r)
	if !ok {
		return
	}
	instanceID := r.PathValue("instance_id")
	if _, err := uuid.Parse(instanceID); err != nil {
		writeServiceError(w, r, h.logger, &scheduling.NotFoundError{Entity: "instance"})
		return
	}
	inst, err := h.svc.CancelInstance(r.Context(), actor, sched.ID, instanceID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	f := scheduling.Filter{TenantIDs: actor.VisibleTenants()}

	tenantID, err := optionalID(r, "tenant_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if tenantID != 0 {
		if err := h.svc.RequireTenant(r.Context(), actor, tenantID); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		f.TenantIDs = []int64{tenantID}
	}

	for name, dst := range map[string]*int64{
		"provider_id": &f.ProviderID,
		"user_id":     &f.UserID,
		"category_id": &f.CategoryID,
		"product_id":  &f.ProductID,
	} {
		if *dst, err = optionalID(r, name); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	f.Status = model.Status(strings.ToLower(q.Get("status")))
	if f.From, f.To, err = optionalRange(r, h.svc.Location()); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Skip, err = optionalInt(r, "skip", 0); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Limit, err = optionalInt(r, "limit", scheduling.DefaultLimit); err != nil {
		badRequest(w, err.Error())
		return
	}

	schedules, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleList(schedules))
}
