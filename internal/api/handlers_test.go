package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docsynth/internal/auth"
	"docsynth/internal/config"
	"docsynth/internal/models"
	"docsynth/internal/service/ai"
	"docsynth/internal/storage"
	"docsynth/internal/synthesis"
	"docsynth/internal/worker"
)

type mockCompleter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockCompleter) Complete(ctx context.Context, req ai.Request) (*ai.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &ai.Completion{Content: "# Document", TokensIn: 100, TokensOut: 50}, nil
}

type mockRefresher struct {
	tasks []worker.Task
	busy  bool
}

func (m *mockRefresher) Submit(task worker.Task) error {
	if m.busy {
		return worker.ErrDispatcherBusy
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockRefresher) CancelTenant(tenantID string) int {
	n := len(m.tasks)
	m.tasks = nil
	return n
}

type testServer struct {
	router    *gin.Engine
	store     *storage.Store
	completer *mockCompleter
	refresher *mockRefresher
}

func newTestServer(t *testing.T, tokens ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	store := storage.NewStore(db, "sqlite3")
	seedStore(t, store)

	completer := &mockCompleter{}
	svc, err := synthesis.NewService(store, completer, synthesis.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	refresher := &mockRefresher{}
	handler := NewHandler(svc, store, auth.NewService(tokens), refresher, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, store: store, completer: completer, refresher: refresher}
}

func seedStore(t *testing.T, s *storage.Store) {
	t.Helper()
	ctx := context.Background()
	stamp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.UpsertTenant(ctx, models.Tenant{ID: "acme", Name: "Acme"}))
	must(s.UpsertSchema(ctx, models.DocumentSchema{DocumentType: "icp", SynthesisPrompt: "ICP from {{sources}}"}))
	must(s.UpsertSchema(ctx, models.DocumentSchema{DocumentType: "brand-guidelines", SynthesisPrompt: "Brand from {{sources}}"}))
	must(s.UpsertDocument(ctx, models.SourceDocument{ID: "d1", TenantID: "acme", Title: "Notes", Content: "we sell rockets", UpdatedAt: stamp}))
	must(s.Assign(ctx, models.Assignment{TenantID: "acme", DocumentType: "icp", DocumentID: "d1"}))
	must(s.Assign(ctx, models.Assignment{TenantID: "acme", DocumentType: "brand-guidelines", DocumentID: "d1"}))
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

type synthesisBody struct {
	Success           bool    `json:"success"`
	DocumentID        string  `json:"documentId"`
	Version           int     `json:"version"`
	PreviousVersionID *string `json:"previousVersionId"`
	Status            string  `json:"status"`
	TokensUsed        int     `json:"tokensUsed"`
	JobID             string  `json:"jobId"`
	Skipped           bool    `json:"skipped"`
	Message           string  `json:"message"`
	Error             string  `json:"error"`
}

func TestSynthesisFlow(t *testing.T) {
	srv := newTestServer(t)
	req := map[string]any{"tenantId": "acme", "documentType": "icp"}

	first := doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", req, nil)
	assertStatus(t, first, http.StatusOK)
	var created synthesisBody
	decodeJSON(t, first.Body.Bytes(), &created)
	if !created.Success || created.Version != 1 || created.PreviousVersionID != nil || created.Status != "pending_review" || created.TokensUsed != 150 || created.JobID == "" {
		t.Fatalf("unexpected create response: %s", first.Body.String())
	}

	second := doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", req, nil)
	assertStatus(t, second, http.StatusOK)
	var cached synthesisBody
	decodeJSON(t, second.Body.Bytes(), &cached)
	if !cached.Skipped || cached.DocumentID != created.DocumentID || cached.Message != "no changes detected" {
		t.Fatalf("expected cache hit: %s", second.Body.String())
	}

	forced := doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", map[string]any{"tenantId": "acme", "documentType": "icp", "force": true}, nil)
	assertStatus(t, forced, http.StatusOK)
	var v2 synthesisBody
	decodeJSON(t, forced.Body.Bytes(), &v2)
	if v2.Version != 2 || v2.PreviousVersionID == nil || *v2.PreviousVersionID != created.DocumentID {
		t.Fatalf("expected version 2 chained to v1: %s", forced.Body.String())
	}
	if srv.completer.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", srv.completer.calls)
	}

	// job status
	jobResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/synthesis/jobs/"+v2.JobID, nil, nil)
	assertStatus(t, jobResp, http.StatusOK)
	var jobBody struct {
		Job models.SynthesisJob `json:"job"`
	}
	decodeJSON(t, jobResp.Body.Bytes(), &jobBody)
	if jobBody.Job.Status != models.JobCompleted || jobBody.Job.SynthesizedDocumentID != v2.DocumentID || !jobBody.Job.Forced {
		t.Fatalf("unexpected job: %+v", jobBody.Job)
	}

	// version chain
	versionsResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/tenants/acme/documents/icp/versions", nil, nil)
	assertStatus(t, versionsResp, http.StatusOK)
	var versionsBody struct {
		Versions []versionView `json:"versions"`
	}
	decodeJSON(t, versionsResp.Body.Bytes(), &versionsBody)
	if len(versionsBody.Versions) != 2 || versionsBody.Versions[0].Version != 2 || versionsBody.Versions[1].ID != created.DocumentID {
		t.Fatalf("unexpected version chain: %s", versionsResp.Body.String())
	}

	limited := doJSONRequest(t, srv.router, http.MethodGet, "/api/tenants/acme/documents/icp/versions?limit=1", nil, nil)
	decodeJSON(t, limited.Body.Bytes(), &versionsBody)
	if len(versionsBody.Versions) != 1 {
		t.Fatalf("limit not applied: %s", limited.Body.String())
	}

	docResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/documents/"+created.DocumentID, nil, nil)
	assertStatus(t, docResp, http.StatusOK)
	var docBody struct {
		Document models.Artifact `json:"document"`
	}
	decodeJSON(t, docResp.Body.Bytes(), &docBody)
	if docBody.Document.Content != "# Document" || docBody.Document.ApprovalStatus != models.ApprovalDraft {
		t.Fatalf("unexpected document: %+v", docBody.Document)
	}
}

func TestSynthesisErrors(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing tenant", map[string]any{"documentType": "icp"}, http.StatusBadRequest},
		{"unknown tenant", map[string]any{"tenantId": "globex", "documentType": "icp"}, http.StatusNotFound},
		{"empty source set", map[string]any{"tenantId": "acme", "documentType": "voice"}, http.StatusBadRequest},
		{"subset without matches", map[string]any{"tenantId": "acme", "documentType": "icp", "sourceDocumentIds": []string{"nope"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", tc.body, nil)
			assertStatus(t, rec, tc.want)
			var body synthesisBody
			decodeJSON(t, rec.Body.Bytes(), &body)
			if body.Success || body.Error == "" {
				t.Fatalf("expected error payload: %s", rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/synthesis", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestSynthesisProviderFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.completer.err = &ai.StatusError{StatusCode: 500, Body: "upstream exploded"}

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", map[string]any{"tenantId": "acme", "documentType": "icp"}, nil)
	assertStatus(t, rec, http.StatusInternalServerError)
	var body map[string]any
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body["status"] != "error" || body["success"] != false {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
	n, err := srv.store.CountJobs(context.Background(), "acme", "icp", models.JobFailed)
	if err != nil || n != 1 {
		t.Fatalf("expected one failed job, got %d %v", n, err)
	}
}

func TestStatusForRaceConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/synthesis", nil)
	respondError(c, &synthesis.RaceAmbiguousError{JobID: "job-9", JobStatus: models.JobRunning})

	assertStatus(t, rec, http.StatusConflict)
	var body map[string]any
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body["jobId"] != "job-9" {
		t.Fatalf("conflict should carry jobId: %s", rec.Body.String())
	}
	if statusFor(&synthesis.NoTransformerConfiguredError{}) != http.StatusInternalServerError {
		t.Fatalf("missing transformer should map to 500")
	}
}

func TestJobAndDocumentNotFound(t *testing.T) {
	srv := newTestServer(t)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/synthesis/jobs/missing", nil, nil), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/documents/missing", nil, nil), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/tenants/globex/documents/icp/versions", nil, nil), http.StatusNotFound)

	empty := doJSONRequest(t, srv.router, http.MethodGet, "/api/tenants/acme/documents/icp/versions", nil, nil)
	assertStatus(t, empty, http.StatusOK)
	var body struct {
		Versions []versionView `json:"versions"`
	}
	decodeJSON(t, empty.Body.Bytes(), &body)
	if body.Versions == nil || len(body.Versions) != 0 {
		t.Fatalf("expected empty version list: %s", empty.Body.String())
	}
}

func TestRefreshTenant(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/tenants/acme/refresh", nil, nil)
	assertStatus(t, rec, http.StatusAccepted)
	if len(srv.refresher.tasks) != 2 || srv.refresher.tasks[0].DocumentType != "brand-guidelines" || srv.refresher.tasks[1].DocumentType != "icp" {
		t.Fatalf("unexpected queued tasks: %+v", srv.refresher.tasks)
	}

	forced := doJSONRequest(t, srv.router, http.MethodPost, "/api/tenants/acme/refresh", map[string]any{"force": true}, nil)
	assertStatus(t, forced, http.StatusAccepted)
	if !srv.refresher.tasks[2].Force {
		t.Fatalf("force flag not propagated: %+v", srv.refresher.tasks[2])
	}

	cancel := doJSONRequest(t, srv.router, http.MethodDelete, "/api/tenants/acme/refresh", nil, nil)
	assertStatus(t, cancel, http.StatusOK)

	srv.refresher.busy = true
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/tenants/acme/refresh", nil, nil), http.StatusTooManyRequests)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/tenants/globex/refresh", nil, nil), http.StatusNotFound)
}

func TestAuthRequiredWhenTokensConfigured(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	body := map[string]any{"tenantId": "acme", "documentType": "icp"}

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", body, nil), http.StatusUnauthorized)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/synthesis", body, map[string]string{"Authorization": "Bearer s3cret"}), http.StatusOK)
	// health stays open
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/healthz", nil, nil), http.StatusOK)

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/tenants/acme/refresh", nil, map[string]string{"Authorization": "Bearer s3cret"})
	assertStatus(t, rec, http.StatusAccepted)
	var receipt struct {
		RequestedBy string `json:"requestedBy"`
	}
	decodeJSON(t, rec.Body.Bytes(), &receipt)
	digest := sha256.Sum256([]byte("s3cret"))
	if want := hex.EncodeToString(digest[:4]); receipt.RequestedBy != want {
		t.Fatalf("expected requestedBy %s, got %q", want, receipt.RequestedBy)
	}
}
