package server

import (
	"net/http"
	"strings"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Accounts.
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	// Files.
	mux.Handle("POST /api/upload", s.withAuth(http.HandlerFunc(s.handleUploadMultipart)))
	mux.Handle("POST /api/files", s.withAuth(http.HandlerFunc(s.handleUploadRaw)))
	mux.Handle("GET /api/files", s.withAuth(http.HandlerFunc(s.handleListFiles)))
	mux.Handle("GET /api/download/{fileId}", s.withAuth(http.HandlerFunc(s.handleDownload)))

	api := corsMiddleware(s.allowedOrigins)(s.withRateLimit(mux))
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			api.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	return s.withRequestID(s.withRequestLogging(handler))
}
