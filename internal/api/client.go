package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"filebox/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "FILEBOX_HTTP_TIMEOUT"
	tokenEnvKey        = "FILEBOX_TOKEN"
)

// Client is a simple HTTP client for the filebox API.
type Client struct {
	baseURL string
	http    *http.Client
	// stream has no overall timeout; transfers are bounded by the context.
	stream *http.Client
	token  string
}

// NewClient creates a new API client. FILEBOX_TOKEN, when set, is used as
// the bearer token.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
		stream:  &http.Client{},
		token:   strings.TrimSpace(os.Getenv(tokenEnvKey)),
	}
}

// WithToken sets the bearer token unless one came from the environment.
func (c *Client) WithToken(token string) *Client {
	if c.token == "" {
		c.token = strings.TrimSpace(token)
	}
	return c
}

// HasToken reports whether requests will carry a bearer token.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	var resp RegisterResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, req, &resp)
	return resp, err
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, req, &resp)
	return resp, err
}

func (c *Client) ListFiles(ctx context.Context) (ListResponse, error) {
	var resp ListResponse
	err := c.do(ctx, http.MethodGet, "/api/files", nil, nil, &resp)
	return resp, err
}

// UploadRequest describes a raw streaming upload.
type UploadRequest struct {
	Filename     string
	ContentType  string
	Size         int64
	Bundle       bool
	Constituents []models.Constituent
	Body         io.Reader
}

// Upload streams req.Body to POST /api/files.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResponse, error) {
	query := url.Values{}
	query.Set("name", req.Filename)
	if req.Bundle {
		query.Set("bundle", "true")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files?"+query.Encode(), req.Body)
	if err != nil {
		return UploadResponse{}, err
	}
	if req.Size >= 0 {
		httpReq.ContentLength = req.Size
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = models.FallbackContentType
	}
	httpReq.Header.Set("Content-Type", contentType)
	if req.Bundle {
		encoded, err := json.Marshal(req.Constituents)
		if err != nil {
			return UploadResponse{}, err
		}
		httpReq.Header.Set(BundleConstituentsHeader, string(encoded))
	}
	c.setAuthHeader(httpReq)

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return UploadResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return UploadResponse{}, decodeError(resp)
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResponse{}, err
	}
	return out, nil
}

// Download streams file id into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (DownloadInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/download/"+url.PathEscape(id), nil)
	if err != nil {
		return DownloadInfo{}, err
	}
	c.setAuthHeader(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return DownloadInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return DownloadInfo{}, decodeError(resp)
	}

	info := DownloadInfo{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Digest:      resp.Header.Get(ContentDigestHeader),
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		info.Filename = params["filename"]
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return info, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	if info.Size >= 0 && n != info.Size {
		return info, fmt.Errorf("download truncated: got %d of %d bytes", n, info.Size)
	}
	info.Size = n
	return info, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.token == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
