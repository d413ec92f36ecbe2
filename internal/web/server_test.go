package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirlisting/importer/internal/config"
	"github.com/dirlisting/importer/internal/core"
)

// nameProcessor fails rows without a name and accepts the rest.
type nameProcessor struct {
	block chan struct{}
}

func (p nameProcessor) Process(ctx context.Context, _ int, rec core.Record) core.RowOutcome {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
		}
	}
	if rec.Get("name") == "" {
		return core.RowOutcome{Error: "name required"}
	}
	return core.RowOutcome{Success: true}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import:  config.ImportConfig{MaxFileSize: 1 << 20},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, proc nameProcessor) (*Server, *core.Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc := core.NewService(core.NewMemoryStore(),
		func(core.Settings) core.RowProcessor { return proc },
		core.ServiceConfig{
			Driver:        core.DriverConfig{RowDelay: time.Millisecond, PollInterval: 10 * time.Millisecond},
			MaxConcurrent: 2,
			MaxWait:       50 * time.Millisecond,
		},
		core.WithMetrics(core.NewMetrics(reg)),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return NewServer(svc, cfg, reg), svc
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func startJSON(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func waitStatus(t *testing.T, svc *core.Service, id string, want core.SessionStatus) core.Session {
	t.Helper()
	var sess core.Session
	require.Eventually(t, func() bool {
		var err error
		sess, err = svc.Inspect(id)
		return err == nil && sess.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return sess
}

func TestStartImport_JSON(t *testing.T) {
	s, svc := newTestServer(t, testConfig(), nameProcessor{})

	rec := startJSON(t, s, `{
		"fileName": "companies.json",
		"records": [
			{"Company Name": "Acme", "lat": 40.5},
			{"name": ""}
		],
		"settings": {"duplicatePolicy": "update"}
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[startResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 2, resp.TotalRows)
	assert.Equal(t, "/api/imports/"+resp.ID, rec.Header().Get("Location"))

	sess := waitStatus(t, svc, resp.ID, core.StatusCompleted)
	assert.Equal(t, core.Stats{TotalRows: 2, ProcessedRows: 2, SuccessfulImports: 1, FailedImports: 1}, sess.Stats)
	assert.Equal(t, core.DuplicateUpdate, sess.Settings.DuplicatePolicy)
	assert.True(t, sess.Settings.AutoCreateCategories, "unspecified settings keep their defaults")
	require.Len(t, sess.Errors, 1)
	assert.Equal(t, 3, sess.Errors[0].Row)
}

func TestStartImport_Multipart(t *testing.T) {
	s, svc := newTestServer(t, testConfig(), nameProcessor{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "companies.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("name;city\nAcme;Springfield\nGlobex;Shelbyville\n"))
	require.NoError(t, mw.WriteField("settings", `{"downloadImages": false}`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[startResponse](t, rec)
	sess := waitStatus(t, svc, resp.ID, core.StatusCompleted)
	assert.Equal(t, "companies.csv", sess.FileName)
	assert.Equal(t, 2, sess.Stats.SuccessfulImports)
}

func TestStartImport_Errors(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nameProcessor{})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"no records", `{"records": []}`, http.StatusBadRequest, "IMP005"},
		{"malformed json", `{"records": [`, http.StatusBadRequest, "IMP007"},
		{"bad policy", `{"records": [{"name": "a"}], "settings": {"duplicatePolicy": "merge"}}`, http.StatusBadRequest, "IMP006"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := startJSON(t, s, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestStartImport_UnsupportedFile(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nameProcessor{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "companies.pdf")
	_, _ = fw.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE001", decode[ErrorResponse](t, rec).Code)
}

func TestStartImport_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 16
	s, _ := newTestServer(t, cfg, nameProcessor{})

	rec := startJSON(t, s, `{"records": [{"name": "a very long company name indeed"}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStartImport_TooManyImports(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s, _ := newTestServer(t, testConfig(), nameProcessor{block: block})

	for i := 0; i < 2; i++ {
		rec := startJSON(t, s, `{"records": [{"name": "a"}]}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := startJSON(t, s, `{"records": [{"name": "a"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "IMP004", decode[ErrorResponse](t, rec).Code)
}

func TestGetImport_NotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nameProcessor{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IMP001", decode[ErrorResponse](t, rec).Code)
}

func TestControlImport(t *testing.T) {
	block := make(chan struct{})
	s, svc := newTestServer(t, testConfig(), nameProcessor{block: block})

	rec := startJSON(t, s, `{"records": [{"name": "a"}, {"name": "b"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[startResponse](t, rec).ID

	post := func(action string) *httptest.ResponseRecorder {
		return do(t, s, httptest.NewRequest(http.MethodPost, "/api/imports/"+id+"/"+action, nil))
	}

	rec = post("pause")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.StatusPaused, decode[importResponse](t, rec).Status)

	rec = post("explode")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP003", decode[ErrorResponse](t, rec).Code)

	rec = post("cancel")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StatusCancelled, decode[importResponse](t, rec).Status)
	close(block)

	rec = post("resume")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IMP002", decode[ErrorResponse](t, rec).Code)

	sess := waitStatus(t, svc, id, core.StatusCancelled)
	assert.NotNil(t, sess.FinishedAt)
}

func TestListImports(t *testing.T) {
	s, svc := newTestServer(t, testConfig(), nameProcessor{})

	rec := startJSON(t, s, `{"fileName": "a.csv", "records": [{"name": "a"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[startResponse](t, rec).ID
	waitStatus(t, svc, id, core.StatusCompleted)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]importSummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 100, list[0].Percent)
}

func TestExportAudit(t *testing.T) {
	s, svc := newTestServer(t, testConfig(), nameProcessor{})

	rec := startJSON(t, s, `{"records": [{"name": "ok"}, {"name": "", "phone": "555"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[startResponse](t, rec).ID
	waitStatus(t, svc, id, core.StatusCompleted)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/"+id+"/errors.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), id)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "_line,_status,_reason,name,phone", lines[0])
	assert.Equal(t, "3,failed,name required,,555", lines[1])
}

func TestDownloadTemplate(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nameProcessor{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "external_id,name,"))

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/template?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	records, err := core.ParseFile("template.xlsx", rec.Body)
	require.NoError(t, err)
	assert.Empty(t, records)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/template?format=ods", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s, _ := newTestServer(t, cfg, nameProcessor{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, do(t, s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, do(t, s, req).Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health check is not behind auth")
}

func TestHealthAndMetrics(t *testing.T) {
	s, svc := newTestServer(t, testConfig(), nameProcessor{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[struct {
		Status  string                   `json:"status"`
		Imports core.ImportLimiterStatus `json:"imports"`
	}](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Imports.MaxConcurrent)

	id := decode[startResponse](t, startJSON(t, s, `{"records": [{"name": "a"}]}`)).ID
	waitStatus(t, svc, id, core.StatusCompleted)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `importer_rows_total{outcome="success"} 1`)
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), nameProcessor{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRecordFromJSON(t *testing.T) {
	rec := recordFromJSON(map[string]any{
		"Company Name": "Acme",
		"latitude":     40.7128,
		"images":       []any{"https://a.test/1.jpg", "https://a.test/2.jpg"},
		"verified":     true,
		"phone":        nil,
	})
	assert.Equal(t, core.Record{
		"name":     "Acme",
		"latitude": "40.7128",
		"images":   "https://a.test/1.jpg,https://a.test/2.jpg",
		"verified": "true",
		"phone":    "",
	}, rec)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	s, _ := newTestServer(t, cfg, nameProcessor{})

	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		_ = s.http.Close()
		t.Fatal("Start kept serving after Shutdown")
	}
}
