package web

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"intelterm/internal/core"
	"intelterm/internal/storage"
	"intelterm/internal/transports/common"
)

const testToken = "test-token"

type fakeProcessor struct {
	block bool
}

func (p *fakeProcessor) Process(ctx context.Context, command string, args []string) core.Result {
	if p.block {
		<-ctx.Done()
		return core.Result{Success: false, Message: "Error executing command: " + ctx.Err().Error(), Type: core.TypeError}
	}
	switch command {
	case "status":
		return core.Result{Success: true, Message: "All systems operational", Type: core.TypeStatus}
	case "intel":
		return core.Result{Success: true, Message: "# report " + strings.Join(args, " "), Type: core.TypeAnalysis}
	default:
		return core.Result{Success: false, Message: "Unknown command: " + command + ". Type /help for available commands.", Type: core.TypeUnknown}
	}
}

type fakeStore struct {
	mu      sync.Mutex
	history []storage.CommandRecord
	digest  *storage.DigestRecord
}

func (s *fakeStore) SaveCommand(ctx context.Context, rec storage.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

func (s *fakeStore) SaveDigest(ctx context.Context, rec storage.DigestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest = &rec
	return nil
}

func (s *fakeStore) LatestDigest(ctx context.Context, command string) (storage.DigestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digest == nil || s.digest.Command != command {
		return storage.DigestRecord{}, storage.ErrNotFound
	}
	return *s.digest, nil
}

func (s *fakeStore) QueryHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.CommandRecord, 0, len(s.history))
	for _, rec := range s.history {
		if q.Subject == "" || rec.Subject == q.Subject {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newTestAdapter(t *testing.T, block bool, cfg Config) (*Adapter, *fakeStore) {
	t.Helper()
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = []TokenEntry{
			{ID: "ops", TokenSHA256: tokenHash(testToken), Subject: "ops", Enabled: true},
			{ID: "old", TokenSHA256: tokenHash("revoked"), Subject: "old", Enabled: false},
		}
	}
	store := &fakeStore{}
	authz := core.NewAllowlistAuthorizer(map[string][]string{"web": {"ops"}})
	return NewAdapter(&fakeProcessor{block: block}, authz, nil, store, cfg, nil), store
}

func doRequest(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != want {
		t.Fatalf("error = %q, want %q", body["error"], want)
	}
	if body["request_id"] == "" {
		t.Fatal("expected request_id in error body")
	}
}

func TestHealthEndpoint(t *testing.T) {
	adapter, _ := newTestAdapter(t, false, Config{})
	rr := doRequest(t, adapter.Handler(), http.MethodGet, "/v1/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestProtectedEndpointRequiresToken(t *testing.T) {
	adapter, _ := newTestAdapter(t, false, Config{})
	h := adapter.Handler()

	rr := doRequest(t, h, http.MethodGet, "/v1/history", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "auth_required")

	rr = doRequest(t, h, http.MethodGet, "/v1/history", "", "revoked")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for disabled token, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "invalid_token")
}

func TestExecuteEndpoint(t *testing.T) {
	adapter, store := newTestAdapter(t, false, Config{})
	h := adapter.Handler()

	rr := doRequest(t, h, http.MethodPost, "/v1/commands", `{"command":"intel","args":["AI","trends"]}`, testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res core.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Success || res.Type != core.TypeAnalysis || res.Message != "# report AI trends" {
		t.Fatalf("unexpected result: %+v", res)
	}

	rr = doRequest(t, h, http.MethodPost, "/v1/commands", `{"text":"/bogus"}`, testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown command is still a result, got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Success || res.Type != core.TypeUnknown {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(store.history) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(store.history))
	}
	if store.history[0].Source != "web" || store.history[0].Subject != "ops" {
		t.Fatalf("unexpected history record: %+v", store.history[0])
	}
}

func TestExecuteEndpointBadRequests(t *testing.T) {
	adapter, _ := newTestAdapter(t, false, Config{MaxRequestBody: 64})
	h := adapter.Handler()

	rr := doRequest(t, h, http.MethodPost, "/v1/commands", `{"command":`, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "invalid_json")

	rr = doRequest(t, h, http.MethodPost, "/v1/commands", `{}`, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "command_required")

	big := `{"command":"intel","args":["` + strings.Repeat("x", 256) + `"]}`
	rr = doRequest(t, h, http.MethodPost, "/v1/commands", big, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for oversized body, got %d", rr.Code)
	}
}

func TestExecuteEndpointDeniedAndRateLimited(t *testing.T) {
	cfg := Config{Tokens: []TokenEntry{
		{ID: "ops", TokenSHA256: tokenHash(testToken), Subject: "ops", Enabled: true},
		{ID: "guest", TokenSHA256: tokenHash("guest-token"), Subject: "guest", Enabled: true},
	}}
	authz := core.NewAllowlistAuthorizer(map[string][]string{"web": {"ops"}})
	limiter := common.NewRateLimiter(1, time.Minute)
	adapter := NewAdapter(&fakeProcessor{}, authz, limiter, nil, cfg, nil)
	h := adapter.Handler()

	rr := doRequest(t, h, http.MethodPost, "/v1/commands", `{"command":"status"}`, "guest-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "access_denied")

	rr = doRequest(t, h, http.MethodPost, "/v1/commands", `{"command":"status"}`, testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/v1/commands", `{"command":"status"}`, testToken)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "rate_limited")
}

func TestExecuteEndpointTimeout(t *testing.T) {
	adapter, _ := newTestAdapter(t, true, Config{RequestTimeout: 20 * time.Millisecond})

	start := time.Now()
	rr := doRequest(t, adapter.Handler(), http.MethodPost, "/v1/commands", `{"command":"status"}`, testToken)
	if time.Since(start) > 2*time.Second {
		t.Fatal("request timeout was not applied")
	}
	var res core.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Success || res.Type != core.TypeError {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestInvalidRequestIDGetsReplaced(t *testing.T) {
	adapter, _ := newTestAdapter(t, false, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-ID", "bad id with spaces")
	rr := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rr, req)

	got := rr.Header().Get("X-Request-ID")
	if got == "" || got == "bad id with spaces" {
		t.Fatalf("expected generated request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected request id abc-123, got %q", got)
	}
}

func TestHistoryAndDigestEndpoints(t *testing.T) {
	adapter, store := newTestAdapter(t, false, Config{})
	h := adapter.Handler()

	rr := doRequest(t, h, http.MethodGet, "/v1/digests/latest", "", testToken)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "digest_not_found")

	_ = store.SaveDigest(context.Background(), storage.DigestRecord{
		Command: "intel", Message: "# digest", Metadata: json.RawMessage(`{"items":2}`), TS: time.Now().UTC(),
	})
	rr = doRequest(t, h, http.MethodGet, "/v1/digests/latest?command=intel", "", testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var digest struct {
		Message  string         `json:"message"`
		Metadata map[string]int `json:"metadata"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &digest); err != nil {
		t.Fatalf("decode digest: %v", err)
	}
	if digest.Message != "# digest" || digest.Metadata["items"] != 2 {
		t.Fatalf("unexpected digest: %+v", digest)
	}

	doRequest(t, h, http.MethodPost, "/v1/commands", `{"command":"status"}`, testToken)
	rr = doRequest(t, h, http.MethodGet, "/v1/history?subject=ops&limit=10", "", testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var history struct {
		Items []storage.CommandRecord `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].Command != "status" {
		t.Fatalf("unexpected history: %+v", history.Items)
	}
}

func TestStorageDisabledEndpoints(t *testing.T) {
	cfg := Config{Tokens: []TokenEntry{{ID: "ops", TokenSHA256: tokenHash(testToken), Subject: "ops", Enabled: true}}}
	adapter := NewAdapter(&fakeProcessor{}, nil, nil, nil, cfg, nil)
	h := adapter.Handler()

	for _, path := range []string{"/v1/history", "/v1/digests/latest"} {
		rr := doRequest(t, h, http.MethodGet, path, "", testToken)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected status 503, got %d", path, rr.Code)
		}
		assertErrorCode(t, rr, "storage_disabled")
	}
}

func TestCORSPreflight(t *testing.T) {
	adapter, _ := newTestAdapter(t, false, Config{AllowedOrigins: []string{"https://dash.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/commands", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestCORSDeniedWithoutAllowedOrigins(t *testing.T) {
	adapter, _ := newTestAdapter(t, false, Config{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/commands", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allowed origin by default, got %q", got)
	}
}
