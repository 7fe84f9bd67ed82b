package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"filebox/internal/transfer"
)

const (
	allowRemoteEnvKey = "FILEBOX_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second

	defaultMultipartMemory = 8 << 20 // 8 MiB

	loginMaxFailures = 5
	loginWindow      = 15 * time.Minute
	loginBlockedFor  = 15 * time.Minute
)

// Options configures the HTTP transport.
type Options struct {
	Logger             *slog.Logger
	AllowedOrigins     []string
	MultipartMaxMemory int64
	// RequestLimiter throttles /api/ requests per client. Nil disables it.
	RequestLimiter RequestLimiter
}

// Server wraps HTTP handlers for the filebox API.
type Server struct {
	addr            string
	files           *transfer.Service
	authService     *AuthService
	logger          *slog.Logger
	allowedOrigins  []string
	multipartMemory int64
	loginLimiter    *loginRateLimiter
	requestLimiter  RequestLimiter
}

// New creates a new server instance.
func New(addr string, files *transfer.Service, authService *AuthService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	multipartMemory := opts.MultipartMaxMemory
	if multipartMemory <= 0 {
		multipartMemory = defaultMultipartMemory
	}
	return &Server{
		addr:            addr,
		files:           files,
		authService:     authService,
		logger:          logger,
		allowedOrigins:  opts.AllowedOrigins,
		multipartMemory: multipartMemory,
		loginLimiter:    newLoginRateLimiter(loginMaxFailures, loginWindow, loginBlockedFor),
		requestLimiter:  opts.RequestLimiter,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
