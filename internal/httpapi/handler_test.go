package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/datacite/registry-search/internal/index"
	"github.com/datacite/registry-search/internal/registry"
	"github.com/datacite/registry-search/internal/search"
	"github.com/datacite/registry-search/pkg/config"
	apperrors "github.com/datacite/registry-search/pkg/errors"
	"github.com/datacite/registry-search/pkg/health"
	"github.com/datacite/registry-search/pkg/metrics"
)

// Prometheus collectors register globally, once per test binary.
var testMetrics = metrics.New()

// fakeStore validates like the real store but persists in memory.
type fakeStore struct {
	entities map[string]*registry.Entity
}

func newFakeStore() *fakeStore {
	return &fakeStore{entities: make(map[string]*registry.Entity)}
}

func (s *fakeStore) key(entityType, uid string) string {
	return entityType + "/" + registry.NormalizeKey(entityType, uid)
}

func (s *fakeStore) Create(ctx context.Context, e *registry.Entity) (*registry.Entity, error) {
	e.UID = registry.NormalizeKey(e.Type, e.UID)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	k := s.key(e.Type, e.UID)
	if _, exists := s.entities[k]; exists {
		return nil, apperrors.Newf(apperrors.ErrConflict, 409, "%q already exists", e.UID)
	}
	e.Version = 1
	e.Created = time.Now().UTC()
	e.Updated = e.Created
	s.entities[k] = e
	return e, nil
}

func (s *fakeStore) Update(ctx context.Context, e *registry.Entity) (*registry.Entity, error) {
	e.UID = registry.NormalizeKey(e.Type, e.UID)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	existing, ok := s.entities[s.key(e.Type, e.UID)]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "no such %s", e.Type)
	}
	e.Version = existing.Version + 1
	e.Created = existing.Created
	e.Updated = time.Now().UTC()
	s.entities[s.key(e.Type, e.UID)] = e
	return e, nil
}

func (s *fakeStore) Delete(ctx context.Context, entityType, uid string) error {
	k := s.key(entityType, uid)
	if _, ok := s.entities[k]; !ok {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "no such %s", entityType)
	}
	delete(s.entities, k)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, entityType, uid string) (*registry.Entity, error) {
	e, ok := s.entities[s.key(entityType, uid)]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "no such %s", entityType)
	}
	return e, nil
}

func newTestServer(t *testing.T, engine *index.Engine, store *fakeStore) *httptest.Server {
	t.Helper()
	handler := NewHandler(engine, store, nil, config.SearchConfig{
		DefaultPageSize: 25,
		MaxPageSize:     1000,
		MaxResultWindow: 10000,
		RequestTimeout:  5 * time.Second,
	}, testMetrics)
	router := NewRouter(handler, health.NewChecker(), testMetrics, 10*time.Second)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func seedClients(t *testing.T, engine *index.Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		doc := search.Document{
			Type: search.TypeClients,
			UID:  fmt.Sprintf("AAAA.C%03d", i),
			Fields: map[string][]string{
				"name":        {fmt.Sprintf("Repository %03d", i)},
				"provider_id": {"AAAA"},
				"created":     {fmt.Sprintf("%d-01-01T00:00:00Z", 2015+i%3)},
			},
			Text:    "research data repository",
			Version: 1,
		}
		if err := engine.IndexDocument(context.Background(), doc); err != nil {
			t.Fatal(err)
		}
	}
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
	return body
}

func TestListOffsetPage(t *testing.T) {
	engine := index.New(time.Minute)
	seedClients(t, engine, 30)
	server := newTestServer(t, engine, newFakeStore())

	body := getJSON(t, server.URL+"/clients?page%5Bsize%5D=10&page%5Bnumber%5D=2", http.StatusOK)

	data := body["data"].([]any)
	if len(data) != 10 {
		t.Errorf("data length = %d, want 10", len(data))
	}
	meta := body["meta"].(map[string]any)
	if meta["total"].(float64) != 30 {
		t.Errorf("total = %v", meta["total"])
	}
	if meta["totalPages"].(float64) != 3 {
		t.Errorf("totalPages = %v", meta["totalPages"])
	}
	if meta["page"].(float64) != 2 {
		t.Errorf("page = %v", meta["page"])
	}
	if _, ok := meta["years"]; !ok {
		t.Errorf("meta missing years facet: %v", meta)
	}
	links := body["links"].(map[string]any)
	if !strings.Contains(links["next"].(string), "page%5Bnumber%5D=3") {
		t.Errorf("next link = %v", links["next"])
	}

	first := data[0].(map[string]any)
	if first["type"] != "clients" || first["id"] == "" {
		t.Errorf("resource = %v", first)
	}
}

func TestListZeroResultsSuppressesFacets(t *testing.T) {
	engine := index.New(time.Minute)
	seedClients(t, engine, 5)
	server := newTestServer(t, engine, newFakeStore())

	body := getJSON(t, server.URL+"/clients?query=nonexistentterm", http.StatusOK)
	meta := body["meta"].(map[string]any)
	if meta["total"].(float64) != 0 {
		t.Fatalf("total = %v", meta["total"])
	}
	if _, present := meta["years"]; present {
		t.Errorf("zero-total response still carries facets: %v", meta)
	}
}

func TestListScrollMetaShape(t *testing.T) {
	engine := index.New(time.Minute)
	seedClients(t, engine, 12)
	server := newTestServer(t, engine, newFakeStore())

	body := getJSON(t, server.URL+"/clients?page%5Bscroll%5D=true&page%5Bsize%5D=5", http.StatusOK)
	meta := body["meta"].(map[string]any)
	if meta["scroll-id"] == "" {
		t.Fatal("no scroll-id in meta")
	}
	if len(meta) != 2 {
		t.Errorf("scroll meta = %v, want only total and scroll-id", meta)
	}

	// Follow the continuation link until the snapshot is exhausted.
	seen := len(body["data"].([]any))
	links := body["links"].(map[string]any)
	for i := 0; i < 10; i++ {
		next, ok := links["next"].(string)
		if !ok {
			break
		}
		body = getJSON(t, next, http.StatusOK)
		seen += len(body["data"].([]any))
		links = body["links"].(map[string]any)
	}
	if seen != 12 {
		t.Errorf("scrolled %d documents, want 12", seen)
	}
}

func TestListCursorAndScrollConflict(t *testing.T) {
	server := newTestServer(t, index.New(time.Minute), newFakeStore())
	resp, err := http.Get(server.URL + "/clients?page%5Bcursor%5D=&page%5Bscroll%5D=true")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListQuerySyntaxError(t *testing.T) {
	server := newTestServer(t, index.New(time.Minute), newFakeStore())
	body := getJSON(t, server.URL+"/clients?query=%2Abad", http.StatusBadRequest)
	errs := body["errors"].([]any)
	title := errs[0].(map[string]any)["title"].(string)
	if !strings.Contains(title, "Failed to parse query") {
		t.Errorf("title = %q", title)
	}
}

func TestShowNotFound(t *testing.T) {
	server := newTestServer(t, index.New(time.Minute), newFakeStore())
	resp, err := http.Get(server.URL + "/clients/AAAA.NONE")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateShowDelete(t *testing.T) {
	store := newFakeStore()
	server := newTestServer(t, index.New(time.Minute), store)

	payload := `{"data":{"id":"bbbb.new","type":"clients","attributes":{"name":"New Repo","provider_id":"BBBB"}}}`
	resp, err := http.Post(server.URL+"/clients", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/clients/BBBB.NEW" {
		t.Errorf("Location = %q", loc)
	}

	body := getJSON(t, server.URL+"/clients/BBBB.NEW", http.StatusOK)
	data := body["data"].(map[string]any)
	if data["id"] != "BBBB.NEW" {
		t.Errorf("data = %v", data)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/clients/BBBB.NEW", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", delResp.StatusCode)
	}
}

func TestCreateValidationErrorListsFields(t *testing.T) {
	server := newTestServer(t, index.New(time.Minute), newFakeStore())

	payload := `{"data":{"id":"bad symbol","type":"clients","attributes":{}}}`
	resp, err := http.Post(server.URL+"/clients", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	errs := body["errors"].([]any)
	if len(errs) < 2 {
		t.Errorf("errors = %v, want one entry per failed field", errs)
	}
}

func TestUpdateImmutableKey(t *testing.T) {
	store := newFakeStore()
	if _, err := store.Create(context.Background(), &registry.Entity{
		Type:       search.TypeClients,
		UID:        "CCCC.ONE",
		Attributes: map[string]any{"name": "Before", "provider_id": "CCCC"},
	}); err != nil {
		t.Fatal(err)
	}
	server := newTestServer(t, index.New(time.Minute), store)

	payload := `{"data":{"id":"CCCC.RENAMED","type":"clients","attributes":{"name":"After","provider_id":"CCCC"}}}`
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/clients/CCCC.ONE", strings.NewReader(payload))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}

	// Matching id in the body is fine.
	payload = `{"data":{"id":"cccc.one","type":"clients","attributes":{"name":"After","provider_id":"CCCC"}}}`
	req, _ = http.NewRequest(http.MethodPut, server.URL+"/clients/CCCC.ONE", strings.NewReader(payload))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp2.StatusCode)
	}
}

func TestWorksDOIPathRouting(t *testing.T) {
	store := newFakeStore()
	if _, err := store.Create(context.Background(), &registry.Entity{
		Type:       search.TypeWorks,
		UID:        "10.5438/0012",
		Attributes: map[string]any{"client_id": "AAAA.ONE"},
	}); err != nil {
		t.Fatal(err)
	}
	server := newTestServer(t, index.New(time.Minute), store)

	body := getJSON(t, server.URL+"/works/10.5438/0012", http.StatusOK)
	if body["data"].(map[string]any)["id"] != "10.5438/0012" {
		t.Errorf("data = %v", body["data"])
	}
}
