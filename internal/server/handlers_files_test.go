package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filebox/internal/api"
	"filebox/internal/blobstore"
	"filebox/internal/models"
)

func TestFileRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"non-bearer scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := ts.do(req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
			resp := decodeBody[api.ErrorResponse](t, w.Body)
			if resp.ErrorCode != ErrCodeUnauthorized || resp.Code != "unauthorized" {
				t.Fatalf("unexpected error response: %+v", resp)
			}
		})
	}
}

func TestMultipartUploadAndDownload(t *testing.T) {
	ts := newTestServer(t, testServerOptions{chunkSize: 2})
	token := ts.tokenFor(t, "us-alice")

	w := ts.do(multipartUpload(t, token, "abc.txt", []byte("abc"), nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	up := decodeBody[api.UploadResponse](t, w.Body)
	if up.FileID == "" || up.IsZipped || up.File.Size != 3 || up.File.DisplayName != "abc.txt" {
		t.Fatalf("unexpected upload response: %+v", up)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+up.FileID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = ts.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), []byte{0x61, 0x62, 0x63}) {
		t.Fatalf("unexpected body %q", w.Body.Bytes())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename=abc.txt` {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "3" {
		t.Fatalf("unexpected content length %q", got)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/octet-stream") && !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := w.Header().Get(api.ContentDigestHeader); got != blobstore.ChunkChecksum([]byte("abc")) {
		t.Fatalf("unexpected digest header %q", got)
	}
}

func TestMultipartBundleUpload(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	token := ts.tokenFor(t, "us-alice")

	originals := `[{"name":"a.txt","originalName":"a.txt","size":1},{"name":"b.txt","originalName":"b.txt","size":2}]`
	w := ts.do(multipartUpload(t, token, "files.zip", []byte("PK\x03\x04bundle"), map[string]string{
		"isZipped":      "true",
		"originalFiles": originals,
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	up := decodeBody[api.UploadResponse](t, w.Body)
	if !up.IsZipped {
		t.Fatalf("expected bundle upload, got %+v", up)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = ts.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if _, ok := raw["zippedFiles"]; !ok {
		t.Fatalf("listing missing zippedFiles: %s", w.Body.String())
	}
	var listing api.ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Files) != 0 || len(listing.Bundles) != 1 {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	got := listing.Bundles[0].Constituents
	if len(got) != 2 || got[0].Name != "a.txt" || got[1].Name != "b.txt" || got[1].Size != 2 {
		t.Fatalf("unexpected constituents: %+v", got)
	}

	w = ts.do(multipartUpload(t, token, "bad.zip", []byte("zip"), map[string]string{"isZipped": "true"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bundle without originals: expected 400, got %d", w.Code)
	}
	if resp := decodeBody[api.ErrorResponse](t, w.Body); resp.ErrorCode != ErrCodeInvalidBundle {
		t.Fatalf("unexpected error code %d", resp.ErrorCode)
	}
}

func TestMultipartUploadMissingFile(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	token := ts.tokenFor(t, "us-alice")

	var body bytes.Buffer
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"isZipped\"\r\n\r\nfalse\r\n--b--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set("Authorization", "Bearer "+token)
	w := ts.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRawUpload(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	token := ts.tokenFor(t, "us-alice")

	req := httptest.NewRequest(http.MethodPost, "/api/files?name=../../notes.md&bundle=true", strings.NewReader("zipped"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(api.BundleConstituentsHeader, `[{"name":"notes.md","size":6}]`)
	w := ts.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	up := decodeBody[api.UploadResponse](t, w.Body)
	if up.File.DisplayName != "notes.md" || !up.IsZipped || up.File.Size != 6 {
		t.Fatalf("unexpected upload response: %+v", up)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader("x"))
	req.Header.Set("Authorization", "Bearer "+token)
	if w := ts.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("missing name: expected 400, got %d", w.Code)
	}
}

func TestUploadOverLimit(t *testing.T) {
	ts := newTestServer(t, testServerOptions{maxUpload: 16})
	token := ts.tokenFor(t, "us-alice")

	req := httptest.NewRequest(http.MethodPost, "/api/files?name=big.bin", strings.NewReader(strings.Repeat("x", 17)))
	req.Header.Set("Authorization", "Bearer "+token)
	w := ts.do(req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody[api.ErrorResponse](t, w.Body); resp.ErrorCode != ErrCodePayloadTooLarge {
		t.Fatalf("unexpected error code %d", resp.ErrorCode)
	}

	w = ts.do(multipartUpload(t, token, "big.bin", bytes.Repeat([]byte("y"), 17), nil))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("multipart: expected 413, got %d (%s)", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	listing := decodeBody[api.ListResponse](t, ts.do(req).Body)
	if len(listing.Files) != 0 {
		t.Fatalf("oversized uploads must not be registered: %+v", listing.Files)
	}
}

func TestDownloadOwnershipStatuses(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	bobToken := ts.tokenFor(t, "us-bob")
	aliceToken := ts.tokenFor(t, "us-alice")

	w := ts.do(multipartUpload(t, bobToken, "bob.txt", []byte("bob's"), nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d", w.Code)
	}
	up := decodeBody[api.UploadResponse](t, w.Body)

	tests := []struct {
		name    string
		id      string
		status  int
		errCode int
	}{
		{"other owner", up.FileID, http.StatusForbidden, ErrCodeForbidden},
		{"unknown id", "6f1c9a52-3d0e-4a8b-9b1f-2c7d5e8a0b14", http.StatusNotFound, ErrCodeFileNotFound},
		{"malformed id", "abc", http.StatusNotFound, ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/download/"+tt.id, nil)
			req.Header.Set("Authorization", "Bearer "+aliceToken)
			w := ts.do(req)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
			if resp := decodeBody[api.ErrorResponse](t, w.Body); resp.ErrorCode != tt.errCode {
				t.Fatalf("expected error_code %d, got %d", tt.errCode, resp.ErrorCode)
			}
		})
	}
}

func TestDownloadAbortsOnStreamFailure(t *testing.T) {
	var flaky *failingReadStore
	ts := newTestServer(t, testServerOptions{
		chunkSize: 2,
		chunks: func(inner blobstore.ChunkStore) blobstore.ChunkStore {
			flaky = &failingReadStore{ChunkStore: inner}
			return flaky
		},
	})
	token := ts.tokenFor(t, "us-alice")

	w := ts.do(multipartUpload(t, token, "data.bin", []byte("abcdef"), nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d", w.Code)
	}
	up := decodeBody[api.UploadResponse](t, w.Body)
	flaky.failAfter = 1

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+up.FileID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	defer func() {
		recovered := recover()
		if recovered != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler panic, got %v", recovered)
		}
		if rec.Body.String() != "ab" {
			t.Fatalf("expected only the first chunk before abort, got %q", rec.Body.String())
		}
	}()
	ts.h.ServeHTTP(rec, req)
	t.Fatal("expected handler to abort")
}

type failingReadStore struct {
	blobstore.ChunkStore
	failAfter int
}

func (f *failingReadStore) OpenRead(ctx context.Context, blobID string) (blobstore.ReadHandle, error) {
	handle, err := f.ChunkStore.OpenRead(ctx, blobID)
	if err != nil {
		return nil, err
	}
	return &failingReadHandle{ReadHandle: handle, failAfter: f.failAfter}, nil
}

type failingReadHandle struct {
	blobstore.ReadHandle
	failAfter int
	reads     int
}

func (h *failingReadHandle) Next(ctx context.Context) ([]byte, error) {
	if h.failAfter > 0 && h.reads >= h.failAfter {
		return nil, fmt.Errorf("disk gone: %w", models.ErrStoreUnavailable)
	}
	h.reads++
	return h.ReadHandle.Next(ctx)
}
