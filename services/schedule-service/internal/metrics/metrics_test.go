package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Created("single", 1)
	m.Created("recurring", 3)
	m.Conflict("create")
	m.CompletedN(2)

	if got := testutil.ToFloat64(m.SchedulesCreated.WithLabelValues("recurring")); got != 3 {
		t.Fatalf("expected 3 recurring, got %v", got)
	}
	if got := testutil.ToFloat64(m.Completed); got != 2 {
		t.Fatalf("expected 2 completed, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "schedule_conflicts_total") {
		t.Fatalf("metrics output missing conflicts counter")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Created("single", 1)
	m.Conflict("create")
	m.BulkDay("created")
	m.CompletedN(1)
	m.Published(1)
	m.PublishFailed()
	if m.HTTP() != nil {
		t.Fatal("expected nil histogram")
	}
}
