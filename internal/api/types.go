package api

import (
	"time"

	"filebox/internal/models"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// LoginRequest exchanges a password for a bearer token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadResponse is returned after a file is stored and registered.
type UploadResponse struct {
	Message  string               `json:"message"`
	FileID   string               `json:"fileId"`
	IsZipped bool                 `json:"isZipped"`
	File     models.FileReference `json:"file"`
}

// ListResponse groups the caller's files by kind.
type ListResponse = models.FileListing

// DownloadInfo describes a downloaded file from its response headers.
type DownloadInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest,omitempty"`
}

const (
	// BundleConstituentsHeader carries a JSON constituent list on raw uploads.
	BundleConstituentsHeader = "X-Bundle-Constituents"
	// ContentDigestHeader carries the blake3 digest of a downloaded blob.
	ContentDigestHeader = "X-Content-Blake3"
	// RequestIDHeader correlates a request with server logs.
	RequestIDHeader = "X-Request-ID"
)
