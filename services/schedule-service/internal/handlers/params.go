package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

// actorFrom reads the verified claims set by auth.Verifier.Require.
func actorFrom(r *http.Request) (scheduling.Actor, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return scheduling.Actor{}, false
	}
	return scheduling.Actor{
		UserID:     claims.UserID,
		TenantIDs:  claims.TenantIDs,
		SuperAdmin: claims.SuperAdmin,
	}, true
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// optionalID returns 0 when the query parameter is absent.
func optionalID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return parseID(raw, name)
}

func optionalInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

// parseInstant accepts RFC 3339, or a zone-less "YYYY-MM-DD[THH:MM[:SS]]"
// read in loc.
func parseInstant(raw, name string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s", name)
}

// parseEndOfRange is parseInstant, except that a bare date covers the
// whole day.
func parseEndOfRange(raw, name string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return parseInstant(raw, name, loc)
}

func optionalRange(r *http.Request, loc *time.Location) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("start_date"); raw != "" {
		t, err := parseInstant(raw, "start_date", loc)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := parseEndOfRange(raw, "end_date", loc)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}
