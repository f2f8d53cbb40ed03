package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/inventory"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/midspan"
	"kuwaiba/osp-core/internal/portsync"
	"kuwaiba/osp-core/internal/treelayout"
)

const openBody = `{"location":{"class":"Manhole","id":"m1"},"device":{"class":"SpliceBox","id":"sb1"},"cable":{"class":"WireContainer","id":"c1"}}`

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newExampleStore(t *testing.T) *inventory.Store {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	seed, err := inventory.LoadSeed(filepath.Join(filepath.Dir(thisFile), "..", "..", "configs", "seed.example.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	s, err := inventory.NewFromSeed(context.Background(), seed)
	if err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return s
}

func newTestRouter(t *testing.T, mutate func(*Deps)) (http.Handler, *inventory.Store) {
	t.Helper()
	store := newExampleStore(t)
	deps := Deps{
		Store:    store,
		Metadata: store,
		Metrics:  metrics.New(),
		Layout:   treelayout.DefaultOptions(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewHandler(zerolog.Nop(), deps).Router(), store
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	env := decode[errorEnvelope](t, rr)
	if env.Error.Code != code {
		t.Fatalf("expected error code %q, got %q (%s)", code, env.Error.Code, env.Error.Message)
	}
}

func openSession(t *testing.T, router http.Handler) midspan.View {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/api/v1/sessions", openBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	v := decode[midspan.View](t, rr)
	if v.Session == "" {
		t.Fatalf("expected a session id")
	}
	return v
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := do(t, router, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := do(t, router, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for the in-memory store, got %d: %s", rr.Code, rr.Body.String())
	}

	bare := NewHandler(zerolog.Nop(), Deps{}).Router()
	expectError(t, do(t, bare, http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable, "store_unavailable")
	expectError(t, do(t, bare, http.MethodPost, "/api/v1/sessions", openBody), http.StatusServiceUnavailable, "store_unavailable")
}

func TestSessions_lifecycle(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	v := openSession(t, router)
	base := "/api/v1/sessions/" + v.Session

	if v.Mode != midspan.SpliceMode || len(v.Tree.Cells) == 0 || len(v.Panel.Ports) != 8 {
		t.Fatalf("unexpected initial view: mode=%s cells=%d ports=%d", v.Mode, len(v.Tree.Cells), len(v.Panel.Ports))
	}

	rr := do(t, router, http.MethodPut, base+"/mode", `{"mode":"cut"}`)
	if rr.Code != http.StatusOK || decode[midspan.View](t, rr).Mode != midspan.CutMode {
		t.Fatalf("expected cut mode")
	}
	expectError(t, do(t, router, http.MethodPut, base+"/mode", `{"mode":"weld"}`), http.StatusBadRequest, "validation_failed")

	rr = do(t, router, http.MethodPut, base+"/exchange", `{"exchange":true}`)
	if rr.Code != http.StatusOK || !decode[midspan.View](t, rr).Exchange {
		t.Fatalf("expected exchanged view")
	}

	rr = do(t, router, http.MethodGet, base, "")
	if rr.Code != http.StatusOK || decode[midspan.View](t, rr).Session != v.Session {
		t.Fatalf("get session failed: %d", rr.Code)
	}

	rr = do(t, router, http.MethodDelete, base, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("close expected 204, got %d", rr.Code)
	}
	expectError(t, do(t, router, http.MethodGet, base, ""), http.StatusNotFound, "session_not_found")
	expectError(t, do(t, router, http.MethodDelete, base, ""), http.StatusNotFound, "session_not_found")
}

func TestSessions_openValidation(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	expectError(t, do(t, router, http.MethodPost, "/api/v1/sessions", `{"location":`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, router, http.MethodPost, "/api/v1/sessions", `{"device":{"class":"SpliceBox","id":"sb1"}}`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, router, http.MethodPost, "/api/v1/sessions", `{"location":{"class":"Manhole","id":"m1"},"device":{"class":"SpliceBox","id":"sb1"},"cable":{"class":"WireContainer","id":"c1"},"extra":1}`), http.StatusBadRequest, "validation_failed")

	wrongLocation := `{"location":{"class":"Building","id":"b9"},"device":{"class":"SpliceBox","id":"sb1"},"cable":{"class":"WireContainer","id":"c1"}}`
	expectError(t, do(t, router, http.MethodPost, "/api/v1/sessions", wrongLocation), http.StatusConflict, connectivity.CodeNotInLocation)

	missing := `{"location":{"class":"Manhole","id":"m1"},"device":{"class":"SpliceBox","id":"nope"},"cable":{"class":"WireContainer","id":"c1"}}`
	expectError(t, do(t, router, http.MethodPost, "/api/v1/sessions", missing), http.StatusNotFound, "not_found")
}

func TestSessions_spliceAndRelease(t *testing.T) {
	router, store := newTestRouter(t, nil)
	v := openSession(t, router)
	base := "/api/v1/sessions/" + v.Session

	if rr := do(t, router, http.MethodPost, base+"/nodes/expand", `{"key":"WireContainer/t1"}`); rr.Code != http.StatusOK {
		t.Fatalf("expand expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := do(t, router, http.MethodPost, base+"/edges", `{"source":"OpticalLink/f2","target":"OpticalPort/p2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("splice expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	found := false
	for _, e := range decode[midspan.View](t, rr).Edges {
		if e.Fiber.ID == "f2" && e.Port.ID == "p2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an f2-p2 edge in the view")
	}

	expectError(t, do(t, router, http.MethodPost, base+"/edges", `{"source":"OpticalLink/f1","target":"OpticalPort/p2"}`), http.StatusConflict, connectivity.CodePortConnected)
	expectError(t, do(t, router, http.MethodPost, base+"/edges", `{"source":"WireContainer/t1","target":"OpticalPort/p3"}`), http.StatusConflict, connectivity.CodeInvalidGesture)

	rr = do(t, router, http.MethodPost, base+"/release", `{"port":"OpticalPort/p2","fiber":"OpticalLink/f2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("release expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	attrs, _ := store.GetSpecialAttributes(context.Background(), connectivity.Ref{Class: "OpticalLink", ID: "f2"}, connectivity.RelEndpointA, connectivity.RelEndpointB)
	if len(attrs) != 0 {
		t.Fatalf("expected f2 released, got %+v", attrs)
	}

	if rr := do(t, router, http.MethodPost, base+"/nodes/collapse", `{"key":"WireContainer/t1"}`); rr.Code != http.StatusOK {
		t.Fatalf("collapse expected 200, got %d", rr.Code)
	}
	expectError(t, do(t, router, http.MethodPost, base+"/nodes/toggle", `{}`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, router, http.MethodPost, base+"/nodes/toggle", `{"key":"Nothing/x"}`), http.StatusNotFound, "not_found")
	if rr := do(t, router, http.MethodPost, base+"/refresh", ""); rr.Code != http.StatusOK {
		t.Fatalf("refresh expected 200, got %d", rr.Code)
	}
}

func TestPaths(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPost, "/api/v1/paths/validate", `{"containers":[{"class":"Conduit","id":"d1"},{"class":"Conduit","id":"d2"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("validate expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[pathValidation](t, rr)
	if !res.Valid || res.EndpointCount != 2 || len(res.Candidates) != 5 {
		t.Fatalf("unexpected validation %+v", res)
	}

	rr = do(t, router, http.MethodPost, "/api/v1/paths/shared", `{"a":{"class":"Building","id":"b1"},"b":{"class":"Manhole","id":"m1"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("shared expected 200, got %d", rr.Code)
	}
	shared := decode[map[string][]connectivity.Ref](t, rr)["containers"]
	if len(shared) != 1 || shared[0].ID != "d1" {
		t.Fatalf("expected d1 only, got %+v", shared)
	}

	create := `{"a":{"class":"Building","id":"b1"},"b":{"class":"Building","id":"b2"},"class":"WireContainer","name":"Cable 02",` +
		`"roots":[{"class":"Conduit","id":"d1"},{"class":"Conduit","id":"d2"}],"selected":["WireContainer/c1"]}`
	rr = do(t, router, http.MethodPost, "/api/v1/paths", create)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if ref := decode[connectivity.Ref](t, rr); ref.Name != "Cable 02" || ref.ID == "" {
		t.Fatalf("unexpected created ref %+v", ref)
	}

	noParent := `{"a":{"class":"Building","id":"b1"},"b":{"class":"Building","id":"b9"},"class":"WireContainer","name":"X","roots":[{"class":"Conduit","id":"d1"}]}`
	expectError(t, do(t, router, http.MethodPost, "/api/v1/paths", noParent), http.StatusConflict, connectivity.CodeNoCommonParent)
	expectError(t, do(t, router, http.MethodPost, "/api/v1/paths", `{"a":{"class":"Building","id":"b1"}}`), http.StatusBadRequest, "validation_failed")
}

type fakeWalker struct {
	walk func(ctx context.Context, address, baseOID string) ([]gosnmp.SnmpPDU, error)
}

func (f fakeWalker) Walk(ctx context.Context, address, baseOID string) ([]gosnmp.SnmpPDU, error) {
	return f.walk(ctx, address, baseOID)
}

func TestPortSync(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	expectError(t, do(t, router, http.MethodPost, "/api/v1/devices/SpliceBox/sb1/ports/sync", `{"address":"192.0.2.1"}`), http.StatusServiceUnavailable, "port_sync_disabled")

	walker := fakeWalker{walk: func(_ context.Context, _ string, oid string) ([]gosnmp.SnmpPDU, error) {
		switch oid {
		case "1.3.6.1.2.1.47.1.1.1.1.5":
			return []gosnmp.SnmpPDU{{Name: ".1.3.6.1.2.1.47.1.1.1.1.5.20", Value: 10}}, nil
		case "1.3.6.1.2.1.47.1.1.1.1.7":
			return []gosnmp.SnmpPDU{{Name: ".1.3.6.1.2.1.47.1.1.1.1.7.20", Value: "Port 12"}}, nil
		}
		return nil, nil
	}}
	router, store := newTestRouter(t, func(d *Deps) {
		d.PortSync = &portsync.Syncer{Store: d.Store, Metadata: d.Metadata, Walker: walker, Log: zerolog.Nop(), Metrics: d.Metrics}
	})
	rr := do(t, router, http.MethodPost, "/api/v1/devices/SpliceBox/sb1/ports/sync", `{"address":"192.0.2.1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[portsync.Result](t, rr)
	if len(res.Created) != 1 || res.Created[0].Name != "Port 12" {
		t.Fatalf("unexpected sync result %+v", res)
	}
	children, _ := store.GetObjectChildren(context.Background(), connectivity.Ref{Class: "SpliceBox", ID: "sb1"})
	if len(children) != 9 {
		t.Fatalf("expected 9 ports after sync, got %d", len(children))
	}

	expectError(t, do(t, router, http.MethodPost, "/api/v1/devices/SpliceBox/sb1/ports/sync", `{"address":""}`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, router, http.MethodPost, "/api/v1/devices/SpliceBox/zz/ports/sync", `{"address":"192.0.2.1"}`), http.StatusNotFound, "not_found")
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	do(t, router, http.MethodGet, "/healthz", "")
	rr := do(t, router, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `osp_http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("expected the healthz request to be counted:\n%s", rr.Body.String())
	}
}

func decodeView(t *testing.T, body string) midspan.View {
	t.Helper()
	var v midspan.View
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}
