package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

// writeServiceError is the only place domain errors become status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		notFound   *scheduling.NotFoundError
		validation *scheduling.ValidationError
		conflict   *scheduling.ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		httpx.WriteError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &validation):
		httpx.WriteError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &conflict):
		httpx.WriteError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, scheduling.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request timed out", http.StatusServiceUnavailable)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, msg)
}
