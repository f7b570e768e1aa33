package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pmoura/lsmkv/pkg/auth"
	"github.com/pmoura/lsmkv/pkg/features"
	"github.com/pmoura/lsmkv/pkg/logging"
	"github.com/pmoura/lsmkv/pkg/lsm"
	"github.com/pmoura/lsmkv/pkg/metrics"
)

func newTestHandler(t *testing.T, authManager *auth.Manager) http.Handler {
	t.Helper()
	cfg := lsm.DefaultConfig(t.TempDir())
	engine, err := lsm.Open(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	registry := metrics.NewRegistry()
	engine.SetMetrics(registry)

	server := NewServer(Options{
		Engine:   engine,
		Features: features.NewClient(engine, time.Second),
		Auth:     authManager,
		Metrics:  registry,
		Logger:   logging.Discard(),
	})
	return server.Handler()
}

func doRequest(handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return resp
}

// TestServer_Health tests the liveness endpoint
func TestServer_Health(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := doRequest(handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); !resp.Success {
		t.Errorf("health not successful: %+v", resp)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

// TestServer_KeyLifecycle tests put, get, delete over HTTP
func TestServer_KeyLifecycle(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doRequest(handler, http.MethodPut, "/keys/greeting", "hello world", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(handler, http.MethodGet, "/keys/greeting", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	if data["value"] != "hello world" {
		t.Errorf("value %v", data["value"])
	}

	rec = doRequest(handler, http.MethodDelete, "/keys/greeting", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, "/keys/greeting", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d after delete", rec.Code)
	}
}

// TestServer_GetMissingKey tests the not-found path
func TestServer_GetMissingKey(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := doRequest(handler, http.MethodGet, "/keys/never-set", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Success {
		t.Error("missing key reported as success")
	}
}

// TestServer_KeysWithSlashes tests that hierarchical keys route correctly
func TestServer_KeysWithSlashes(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doRequest(handler, http.MethodPut, "/keys/user/42/name", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodGet, "/keys/user/42/name", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	data := decodeResponse(t, rec).Data.(map[string]any)
	if data["key"] != "user/42/name" {
		t.Errorf("key %v", data["key"])
	}
}

// TestServer_BatchAndSearch tests the bulk endpoints
func TestServer_BatchAndSearch(t *testing.T) {
	handler := newTestHandler(t, nil)

	body, _ := json.Marshal(BatchSetRequest{Records: []SetRequest{
		{Key: "user:1", Value: "alice"},
		{Key: "user:2", Value: "bob"},
		{Key: "order:9", Value: "book"},
	}})
	rec := doRequest(handler, http.MethodPost, "/batch/set", string(body), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch set status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(handler, http.MethodGet, "/search?q=user:&prefix=true", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status %d", rec.Code)
	}
	data := decodeResponse(t, rec).Data.(map[string]any)
	if data["count"] != float64(2) {
		t.Errorf("search count %v", data["count"])
	}

	deleteBody, _ := json.Marshal(BatchDeleteRequest{Keys: []string{"user:1", "order:9"}})
	rec = doRequest(handler, http.MethodPost, "/batch/delete", string(deleteBody), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch delete status %d", rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, "/keys", "", nil)
	data = decodeResponse(t, rec).Data.(map[string]any)
	if data["count"] != float64(1) { // only user:2 survives
		t.Errorf("keys count %v", data["count"])
	}
}

// TestServer_SearchRequiresQuery tests parameter validation
func TestServer_SearchRequiresQuery(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := doRequest(handler, http.MethodGet, "/search", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d", rec.Code)
	}
}

// TestServer_Features tests the feature flag endpoints
func TestServer_Features(t *testing.T) {
	handler := newTestHandler(t, nil)

	body, _ := json.Marshal(SetFeatureRequest{Enabled: true, Description: "new reader path"})
	rec := doRequest(handler, http.MethodPut, "/features/fast-reads", string(body), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("set feature status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(handler, http.MethodGet, "/features/fast-reads", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get feature status %d", rec.Code)
	}
	data := decodeResponse(t, rec).Data.(map[string]any)
	if data["enabled"] != true {
		t.Errorf("feature data %v", data)
	}

	rec = doRequest(handler, http.MethodDelete, "/features/fast-reads", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete feature status %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodGet, "/features/fast-reads", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d after feature delete", rec.Code)
	}
}

// TestServer_Flush tests the explicit flush endpoint
func TestServer_Flush(t *testing.T) {
	handler := newTestHandler(t, nil)
	doRequest(handler, http.MethodPut, "/keys/k", "v", nil)

	rec := doRequest(handler, http.MethodPost, "/flush", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("flush status %d", rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, "/stats", "", nil)
	data := decodeResponse(t, rec).Data.(map[string]any)
	if data["sstable_count"] != float64(1) {
		t.Errorf("sstable count %v after flush", data["sstable_count"])
	}
}

// TestServer_Metrics tests the prometheus endpoint
func TestServer_Metrics(t *testing.T) {
	handler := newTestHandler(t, nil)
	doRequest(handler, http.MethodGet, "/health", "", nil)

	rec := doRequest(handler, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("lsmkv_http_requests_total")) {
		t.Error("metrics output missing the http request counter")
	}
}

// TestServer_AuthEnforcement tests bearer-token protection
func TestServer_AuthEnforcement(t *testing.T) {
	manager, err := auth.NewManager("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	handler := newTestHandler(t, manager)

	// Open endpoints work without a token
	if rec := doRequest(handler, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}

	// Protected endpoints refuse anonymous and garbage tokens
	if rec := doRequest(handler, http.MethodPut, "/keys/k", "v", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous put status %d", rec.Code)
	}
	headers := map[string]string{"Authorization": "Bearer garbage"}
	if rec := doRequest(handler, http.MethodPut, "/keys/k", "v", headers); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status %d", rec.Code)
	}

	// The token exchange is open; the issued token unlocks the API
	tokenBody, _ := json.Marshal(TokenRequest{Secret: "dev-secret"})
	rec := doRequest(handler, http.MethodPost, "/auth/token", string(tokenBody), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token exchange status %d: %s", rec.Code, rec.Body.String())
	}
	token := decodeResponse(t, rec).Data.(map[string]any)["token"].(string)

	headers = map[string]string{"Authorization": "Bearer " + token}
	if rec := doRequest(handler, http.MethodPut, "/keys/k", "v", headers); rec.Code != http.StatusOK {
		t.Fatalf("authorized put status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(handler, http.MethodGet, "/keys/k", "", headers); rec.Code != http.StatusOK {
		t.Fatalf("authorized get status %d", rec.Code)
	}
}
