package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/importer"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

func (h *ScheduleHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req bulkScheduleRequest
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

	in := scheduling.BulkInput{
		TenantID:     req.TenantID,
		ProviderID:   req.ProviderID,
		UserID:       req.UserID,
		CategoryID:   req.CategoryID,
		ProductID:    req.ProductID,
		ServicePrice: req.ServicePrice,
	}
	var err error
	if in.Days, err = model.ParseWeekdays(req.DaysOfWeek); err != nil {
		badRequest(w, err.Error())
		return
	}
	if in.StartTime, err = availability.ParseClock(req.StartTime); err != nil {
		badRequest(w, err.Error())
		return
	}
	if in.EndTime, err = availability.ParseClock(req.EndTime); err != nil {
		badRequest(w, err.Error())
		return
	}
	loc := h.svc.Location()
	if in.StartDate, err = parseInstant(req.StartDate, "start_date", loc); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.EndDate != "" {
		end, err := parseInstant(req.EndDate, "end_date", loc)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		in.EndDate = &end
	}

	res, err := h.svc.CreateBulk(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"schedules": toScheduleList(res.Schedules),
		"ledger":    res.Ledger,
	})
}

// Import accepts a multipart upload with a "file" part and a "tenant_id"
// field. The format follows the file extension unless "format" is given.
func (h *ScheduleHandler) Import(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		badRequest(w, "expected multipart/form-data with a file")
		return
	}
	tenantID, err := parseID(r.FormValue("tenant_id"), "tenant_id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer file.Close()

	format := importer.FormatFromFilename(header.Filename)
	if raw := strings.TrimSpace(r.FormValue("format")); raw != "" {
		if format, err = importer.ParseFormat(raw); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if err := h.svc.RequireTenant(r.Context(), actor, tenantID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	ledger, err := h.importer.Import(r.Context(), actor, tenantID, format, file)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ledger)
}
