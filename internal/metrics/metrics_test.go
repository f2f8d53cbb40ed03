package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}

	// Recording on a nil registry is a no-op.
	m.IncSpliceOperation("splice", "ok")
	m.IncPathValidation(true)
	m.SetSessionsActive(3)
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.IncSpliceOperation("splice", "ok")
	m.IncSpliceOperation("cut", "rejected")
	m.IncPathValidation(false)
	m.IncPortSync("ok")
	m.SetSessionsActive(2)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		`osp_http_requests_total{method="GET",path="/readyz",status="200"} 1`,
		`osp_splice_operations_total{op="splice",result="ok"} 1`,
		`osp_splice_operations_total{op="cut",result="rejected"} 1`,
		`osp_path_validations_total{result="invalid"} 1`,
		`osp_port_syncs_total{result="ok"} 1`,
		`osp_sessions_active 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics body; body=%s", want, body)
		}
	}
}
