package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrument observes latency of h labelled with route (the mux pattern,
// so path parameters do not explode cardinality) and the status code.
func Instrument(hist *prometheus.HistogramVec, route string, h http.Handler) http.Handler {
	if hist == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(sw, r)
		hist.WithLabelValues(route, strconv.Itoa(sw.code())).Observe(time.Since(start).Seconds())
	})
}
