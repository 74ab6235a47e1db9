package handlers

import "net/http"

// Wrap decorates one route's handler; the pattern doubles as its metrics
// label.
type Wrap func(pattern string, h http.Handler) http.Handler

// Register mounts the schedule API on mux. Every route except the
// availability check goes through requireAuth.
func (h *ScheduleHandler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler, wrap Wrap) {
	if wrap == nil {
		wrap = func(_ string, h http.Handler) http.Handler { return h }
	}
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(pattern, fn))
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(pattern, requireAuth(fn)))
	}

	const base = "/api/v1/schedules"
	public("POST "+base+"/check-availability", h.CheckAvailability)

	private("GET "+base, h.List)
	private("GET "+base+"/{$}", h.List)
	private("POST "+base, h.Create)
	private("POST "+base+"/{$}", h.Create)
	private("POST "+base+"/bulk", h.Bulk)
	private("POST "+base+"/import", h.Import)
	private("GET "+base+"/export", h.Export)
	private("GET "+base+"/free-slots", h.FreeSlots)
	private("GET "+base+"/{id}", h.Get)
	private("PUT "+base+"/{id}", h.Update)
	private("DELETE "+base+"/{id}", h.Delete)
	private("POST "+base+"/{id}/cancel", h.Cancel)
	private("POST "+base+"/{id}/instances/{instance_id}/cancel", h.CancelInstance)

	// ServeMux rejects "/{id}/instances" next to "/calendar/{tenant_id}"
	// since neither is more specific, so two segment GETs share one pattern.
	routed := func(pattern, param string, fn http.HandlerFunc) subroute {
		return subroute{param: param, h: wrap(pattern, requireAuth(fn))}
	}
	views := map[string]subroute{
		"calendar":    routed("GET "+base+"/calendar/{tenant_id}", "tenant_id", h.Calendar),
		"upcoming":    routed("GET "+base+"/upcoming/{tenant_id}", "tenant_id", h.Upcoming),
		"by-provider": routed("GET "+base+"/by-provider/{provider_id}", "provider_id", h.ByProvider),
	}
	instances := routed("GET "+base+"/{id}/instances", "id", h.Instances)
	mux.HandleFunc("GET "+base+"/{first}/{second}", func(w http.ResponseWriter, r *http.Request) {
		first, second := r.PathValue("first"), r.PathValue("second")
		if v, ok := views[first]; ok {
			v.serve(w, r, second)
			return
		}
		if second == "instances" {
			instances.serve(w, r, first)
			return
		}
		http.NotFound(w, r)
	})
}

type subroute struct {
	param string
	h     http.Handler
}

func (s subroute) serve(w http.ResponseWriter, r *http.Request, value string) {
	r.SetPathValue(s.param, value)
	s.h.ServeHTTP(w, r)
}
