package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"filebox/internal/api"
	"filebox/internal/auth"
	"filebox/internal/blobstore"
	"filebox/internal/models"
	"filebox/internal/store"
	"filebox/internal/transfer"
)

const testTokenSecret = "test-secret-0123456789abcdef012345"

type testServer struct {
	srv    *Server
	store  *store.Store
	tokens *auth.TokenManager
	h      http.Handler
}

type testServerOptions struct {
	maxUpload int64
	chunkSize int
	chunks    func(blobstore.ChunkStore) blobstore.ChunkStore
	server    Options
}

func newTestServer(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "filebox-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	tokens, err := auth.NewTokenManager([]byte(testTokenSecret), time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	var chunks blobstore.ChunkStore = st.Blobs(blobstore.CompressionLZ4)
	if opts.chunks != nil {
		chunks = opts.chunks(chunks)
	}
	files, err := transfer.NewService(auth.NewGate(tokens), chunks, st, transfer.Options{
		ChunkSize:      opts.chunkSize,
		MaxUploadBytes: opts.maxUpload,
	})
	if err != nil {
		t.Fatalf("transfer service: %v", err)
	}
	srv := New("127.0.0.1:0", files, NewAuthService(st, tokens), opts.server)
	return &testServer{srv: srv, store: st, tokens: tokens, h: srv.Handler()}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	return w
}

func (ts *testServer) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := ts.tokens.Issue(models.Identity(userID), time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func multipartUpload(t *testing.T, token, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeBody[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7333")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7333" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		if _, err := ListenAddr("http://0.0.0.0:7333"); err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7333")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7333" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody[api.HealthResponse](t, w.Body)
	if resp.Status != "ok" {
		t.Fatalf("unexpected health status %q", resp.Status)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := w.Header().Get(api.RequestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.RequestIDHeader, "client-abc-123")
	w = ts.do(req)
	if got := w.Header().Get(api.RequestIDHeader); got != "client-abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.RequestIDHeader, "bad id\twith spaces")
	w = ts.do(req)
	if got := w.Header().Get(api.RequestIDHeader); got == "bad id\twith spaces" {
		t.Fatal("expected malformed request id to be replaced")
	}
}

func TestCORS(t *testing.T) {
	t.Run("preflight", func(t *testing.T) {
		ts := newTestServer(t, testServerOptions{})
		req := httptest.NewRequest(http.MethodOptions, "/api/files", nil)
		req.Header.Set("Origin", "http://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := ts.do(req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204 preflight, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("unexpected allow origin %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Fatalf("open allow list must not grant credentials, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
			t.Fatalf("unexpected max age %q", got)
		}
	})

	t.Run("restricted origins", func(t *testing.T) {
		ts := newTestServer(t, testServerOptions{server: Options{AllowedOrigins: []string{"https://files.example"}}})

		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := ts.do(req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("disallowed origin reflected: %q", got)
		}

		req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.Header.Set("Origin", "https://files.example")
		w = ts.do(req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://files.example" {
			t.Fatalf("allowed origin not reflected: %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Fatalf("listed origin should carry credentials, got %q", got)
		}
	})

	t.Run("wildcard entry", func(t *testing.T) {
		ts := newTestServer(t, testServerOptions{server: Options{AllowedOrigins: []string{"https://files.example", "*"}}})
		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.Header.Set("Origin", "https://other.example")
		w := ts.do(req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("expected wildcard allow origin, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Fatalf("wildcard must not grant credentials, got %q", got)
		}
	})

	t.Run("not applied outside api", func(t *testing.T) {
		ts := newTestServer(t, testServerOptions{})
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://app.example")
		w := ts.do(req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("health should not carry CORS headers, got %q", got)
		}
	})
}
