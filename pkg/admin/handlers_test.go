package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/schema"
)

type fakeOlap struct {
	tables []reality.LiveTable
}

func (f fakeOlap) ListTables(ctx context.Context, databases []string) ([]reality.LiveTable, error) {
	return f.tables, nil
}

type fakeStorage struct {
	current *infra.Map
	saved   *infra.Map
}

func (s *fakeStorage) LoadMap(ctx context.Context) (*infra.Map, error) { return s.current, nil }
func (s *fakeStorage) SaveMap(ctx context.Context, m *infra.Map) error { s.saved = m; return nil }
func (s *fakeStorage) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	return "token", nil
}
func (s *fakeStorage) RenewLock(ctx context.Context, name, token string, ttl time.Duration) error {
	return nil
}
func (s *fakeStorage) ReleaseLock(ctx context.Context, name, token string) error { return nil }

func col(name string) schema.Column {
	return schema.Column{Name: name, Type: &schema.ColumnType{Kind: schema.KindString}, Required: true}
}

func eventsTable() *infra.Table {
	return &infra.Table{
		Name: "events", Database: "analytics", Columns: []schema.Column{col("id")},
		OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree},
	}
}

func newTestServer(t *testing.T, target *infra.Map, storage *fakeStorage, olap reality.OlapClient) *Server {
	t.Helper()
	auth := NewTokenAuth(&config.ProjectConfig{}, "token")
	cfg := &config.ProjectConfig{DefaultDatabase: "analytics", Databases: []string{"analytics"}}
	return NewServer(auth, StaticMap(target), storage, olap, cfg)
}

func authedRequest(method, path string, body *strings.Reader) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer token")
	return req
}

func TestHandleInfraMapNegotiatesProtobuf(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	target.Tables[table.ID("analytics")] = table

	srv := newTestServer(t, target, &fakeStorage{}, nil)
	req := authedRequest(http.MethodGet, "/admin/inframap", nil)
	req.Header.Set("Accept", "application/protobuf")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var decoded infra.Map
	if err := decoded.UnmarshalBinary(rec.Body.Bytes()); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if _, ok := decoded.Tables[table.ID("analytics")]; !ok {
		t.Fatal("expected the events table to round-trip through the protobuf body")
	}
}

func TestHandleInfraMapDefaultsToJSON(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	srv := newTestServer(t, target, &fakeStorage{}, nil)
	req := authedRequest(http.MethodGet, "/admin/inframap", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var decoded infra.Map
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("expected a JSON body, got: %v", err)
	}
}

func TestHandleRealityCheckReturnsDiscrepancies(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	target.Tables[table.ID("analytics")] = table

	srv := newTestServer(t, target, &fakeStorage{}, fakeOlap{}) // no live tables -> missing

	req := authedRequest(http.MethodGet, "/admin/reality-check", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report reality.InfraDiscrepancies
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.MissingTables) != 1 || report.MissingTables[0] != table.ID("analytics") {
		t.Fatalf("expected the events table reported missing, got %+v", report)
	}
}

func TestHandleRealityCheckRejectsWhenOlapDisabled(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	srv := newTestServer(t, target, &fakeStorage{}, nil)

	req := authedRequest(http.MethodGet, "/admin/reality-check", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleIntegrateChangesAdoptsMatchingTable(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	id := table.ID("analytics")
	target.Tables[id] = table

	olap := fakeOlap{tables: []reality.LiveTable{
		{Name: "events", Database: "analytics", Columns: []schema.Column{col("id")}, OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}},
	}}
	storage := &fakeStorage{current: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})}
	srv := newTestServer(t, target, storage, olap)

	body := strings.NewReader(`{"tables": ["` + id + `"]}`)
	req := authedRequest(http.MethodPost, "/admin/integrate-changes", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result integrateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Adopted) != 1 || result.Adopted[0] != id {
		t.Fatalf("expected %q adopted, got %+v", id, result)
	}
	if storage.saved == nil {
		t.Fatal("expected the persisted map to be saved after adoption")
	}
	adopted, ok := storage.saved.Tables[id]
	if !ok || adopted.LifeCycle != infra.FullyManaged {
		t.Fatalf("expected adopted table to be FullyManaged, got %+v", adopted)
	}
}

func TestHandleIntegrateChangesSkipsMismatchedTable(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	table.Columns = append(table.Columns, col("extra"))
	id := table.ID("analytics")
	target.Tables[id] = table

	olap := fakeOlap{tables: []reality.LiveTable{
		{Name: "events", Database: "analytics", Columns: []schema.Column{col("id")}, OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}},
	}}
	storage := &fakeStorage{current: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})}
	srv := newTestServer(t, target, storage, olap)

	body := strings.NewReader(`{"tables": ["` + id + `"]}`)
	req := authedRequest(http.MethodPost, "/admin/integrate-changes", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var result integrateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != id {
		t.Fatalf("expected %q skipped, got %+v", id, result)
	}
	if storage.saved != nil {
		t.Fatal("expected no save when nothing was adopted")
	}
}

func TestHandlePlanPostComputesChangeList(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	srv := newTestServer(t, target, &fakeStorage{current: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})}, nil)

	requestTarget := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	requestTarget.Tables[table.ID("analytics")] = table
	payload, err := json.Marshal(requestTarget)
	if err != nil {
		t.Fatalf("marshal request target: %v", err)
	}

	req := authedRequest(http.MethodPost, "/admin/plan", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var changes infra.InfraChanges
	if err := json.Unmarshal(rec.Body.Bytes(), &changes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(changes.Tables) != 1 || changes.Tables[0].Kind != infra.TableAdded {
		t.Fatalf("expected one TableAdded change, got %+v", changes.Tables)
	}
}

func TestHandlePlanGetReturnsLegacyMap(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	target.Tables[table.ID("analytics")] = table
	srv := newTestServer(t, target, &fakeStorage{}, nil)

	req := authedRequest(http.MethodGet, "/admin/plan", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var decoded infra.Map
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded.Tables[table.ID("analytics")]; !ok {
		t.Fatal("expected the legacy GET /admin/plan to return the target map")
	}
}
