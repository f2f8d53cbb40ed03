package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/db"
	"kuwaiba/osp-core/internal/inventory"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/midspan"
	"kuwaiba/osp-core/internal/treelayout"
)

func requireTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres integration test")
	}
	return dsn
}

func mustDeriveDatabaseURL(t *testing.T, baseURL, dbName string) string {
	t.Helper()

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		t.Skipf("TEST_DATABASE_URL must be a URL-style DSN (e.g. postgres://...); got %q", baseURL)
	}

	u.Path = "/" + dbName
	return u.String()
}

func newTestDatabaseName() string {
	// Safe identifier (letters/digits/underscores) so we can use it without quoting.
	return fmt.Sprintf("osp_core_test_%d", time.Now().UnixNano())
}

func createDatabase(ctx context.Context, adminURL, dbName string) error {
	adminConn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return err
	}
	defer adminConn.Close(ctx)

	_, err = adminConn.Exec(ctx, "CREATE DATABASE "+dbName)
	return err
}

func dropDatabase(ctx context.Context, adminURL, dbName string) error {
	adminConn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return err
	}
	defer adminConn.Close(ctx)

	if _, err := adminConn.Exec(ctx, "DROP DATABASE "+dbName+" WITH (FORCE)"); err == nil {
		return nil
	}
	_, err = adminConn.Exec(ctx, "DROP DATABASE "+dbName)
	return err
}

func repoPath(t *testing.T, parts ...string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", ".."))
	return filepath.Join(append([]string{repoRoot}, parts...)...)
}

// openSeededPostgres creates a scratch database, migrates it and loads the
// example seed.
func openSeededPostgres(t *testing.T, ctx context.Context) *db.Pool {
	t.Helper()
	adminURL := requireTestDatabaseURL(t)

	dbName := newTestDatabaseName()
	testDBURL := mustDeriveDatabaseURL(t, adminURL, dbName)
	if err := createDatabase(ctx, adminURL, dbName); err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() {
		_ = dropDatabase(context.Background(), adminURL, dbName)
	})

	pool, err := db.Open(ctx, testDBURL)
	if err != nil {
		t.Fatalf("open db pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Migrate(ctx, repoPath(t, "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	seed, err := inventory.LoadSeed(repoPath(t, "configs", "seed.example.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if err := inventory.ApplySeed(ctx, pool.Queries(), seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return pool
}

func TestHandler_Postgres_SpliceSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := openSeededPostgres(t, ctx)
	q := pool.Queries()

	router := NewHandler(zerolog.Nop(), Deps{
		Pool:     pool,
		Store:    q,
		Metadata: q,
		Metrics:  metrics.New(),
		Layout:   treelayout.DefaultOptions(),
	}).Router()

	rr := do(t, router, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	v := openSession(t, router)
	if len(v.Panel.Ports) != 8 {
		t.Fatalf("expected 8 ports from postgres, got %d", len(v.Panel.Ports))
	}
	if len(v.Edges) != 1 || v.Edges[0].Port.ID != "p1" {
		t.Fatalf("expected the stored f1-p1 splice as an edge, got %+v", v.Edges)
	}
	base := "/api/v1/sessions/" + v.Session

	if rr := do(t, router, http.MethodPost, base+"/nodes/expand", `{"key":"WireContainer/t1"}`); rr.Code != http.StatusOK {
		t.Fatalf("expand expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, router, http.MethodPost, base+"/edges", `{"source":"OpticalPort/p2","target":"OpticalLink/f2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("splice expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	attrs, err := q.GetSpecialAttributes(ctx, connectivity.Ref{Class: "OpticalPort", ID: "p2"}, connectivity.RelEndpointA)
	if err != nil {
		t.Fatalf("read splice: %v", err)
	}
	if got := attrs[connectivity.RelEndpointA]; len(got) != 1 || got[0].ID != "f2" {
		t.Fatalf("expected p2 spliced to f2 in postgres, got %+v", attrs)
	}
	expectError(t, do(t, router, http.MethodPost, base+"/edges", `{"source":"OpticalLink/f1","target":"OpticalPort/p4"}`), http.StatusConflict, connectivity.CodePortMirrored)

	rr = do(t, router, http.MethodPut, base+"/mode", `{"mode":"cut"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("mode expected 200, got %d", rr.Code)
	}
	rr = do(t, router, http.MethodPost, base+"/edges", `{"source":"OpticalLink/f1","target":"OpticalPort/p3"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("cut expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cut := decodeView(t, rr.Body.String())
	if cut.Mode != midspan.CutMode {
		t.Fatalf("expected cut mode view")
	}
}

func TestHandler_Postgres_CreatePath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := openSeededPostgres(t, ctx)
	q := pool.Queries()

	router := NewHandler(zerolog.Nop(), Deps{Pool: pool, Store: q, Metadata: q}).Router()

	create := `{"a":{"class":"Building","id":"b1"},"b":{"class":"Building","id":"b2"},"class":"WireContainer","name":"Cable 02",` +
		`"roots":[{"class":"Conduit","id":"d1"},{"class":"Conduit","id":"d2"}],"selected":["WireContainer/c1"]}`
	rr := do(t, router, http.MethodPost, "/api/v1/paths", create)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	ref := decode[connectivity.Ref](t, rr)

	parents, err := q.GetSpecialParents(ctx, ref)
	if err != nil || len(parents) != 1 || parents[0].ID != "c1" {
		t.Fatalf("expected the new container inside c1, got %+v %v", parents, err)
	}
	inside, err := q.IsParent(ctx, connectivity.Ref{Class: "Conduit", ID: "d1"}, ref)
	if err != nil || !inside {
		t.Fatalf("expected d1 to contain the new container, got %v %v", inside, err)
	}

	if err := q.DeleteObject(ctx, ref, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := q.GetObject(ctx, ref); err == nil {
		t.Fatalf("expected the container to be gone")
	}
}
