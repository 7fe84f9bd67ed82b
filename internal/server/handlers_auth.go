package server

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filebox/internal/api"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.authService == nil {
		s.writeErrorReq(w, r, http.StatusNotImplemented, apiError{
			status:  http.StatusNotImplemented,
			code:    "not_implemented",
			errCode: ErrCodeNotImplemented,
			err:     fmt.Errorf("registration not supported"),
		})
		return
	}

	var req api.RegisterRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	user, err := s.authService.Register(r.Context(), req.Name, req.Email, req.Password, time.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.log().Info("user registered", "user_id", user.ID)
	s.writeJSON(w, http.StatusCreated, api.RegisterResponse{
		Message: "User registered successfully",
		User:    api.UserResponse{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authService == nil {
		s.writeErrorReq(w, r, http.StatusNotImplemented, apiError{
			status:  http.StatusNotImplemented,
			code:    "not_implemented",
			errCode: ErrCodeNotImplemented,
			err:     fmt.Errorf("login not supported"),
		})
		return
	}

	var req api.LoginRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	limiterKey := loginAttemptKey(req.Email, r)
	if allowed, retryAfter := s.loginLimiter.Allow(limiterKey, now); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many login attempts; retry later"),
		})
		return
	}

	result, err := s.authService.Login(r.Context(), req.Email, req.Password, now)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			s.loginLimiter.RegisterFailure(limiterKey, now)
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("Invalid credentials")))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.loginLimiter.Reset(limiterKey)

	s.writeJSON(w, http.StatusOK, api.LoginResponse{Token: result.Token, ExpiresAt: result.ExpiresAt})
}

func loginAttemptKey(email string, r *http.Request) string {
	user := strings.ToLower(strings.TrimSpace(email))
	if user == "" {
		user = "<empty>"
	}
	ip := requestClientIP(r)
	if ip == "" {
		ip = "<unknown>"
	}
	return ip + "|" + user
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return strings.Trim(remote, "[]")
}
