package server

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, Authorization, X-Requested-With, X-Bundle-Constituents"
	corsExposeHeaders = "Content-Length, Content-Range, Content-Disposition, X-Request-ID, X-Content-Blake3, Retry-After"
	corsMaxAge        = "86400"
)

// corsMiddleware answers preflights and reflects allowed origins. An empty
// allow list (or "*") admits every origin as "*" without credentials; only
// explicitly listed origins are reflected with credentials.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			header := w.Header()
			if origin != "" {
				switch originAccess(origin, allowedOrigins) {
				case originListed:
					header.Set("Access-Control-Allow-Origin", origin)
					header.Set("Access-Control-Allow-Credentials", "true")
					header.Add("Vary", "Origin")
				case originAny:
					header.Set("Access-Control-Allow-Origin", "*")
				}
			}
			header.Set("Access-Control-Allow-Methods", corsAllowMethods)
			header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			header.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			header.Set("Access-Control-Max-Age", corsMaxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type originMatch int

const (
	originDenied originMatch = iota
	originAny
	originListed
)

func originAccess(origin string, allowed []string) originMatch {
	if len(allowed) == 0 {
		return originAny
	}
	wildcard := false
	for _, candidate := range allowed {
		candidate = strings.TrimSpace(candidate)
		if strings.EqualFold(candidate, origin) {
			return originListed
		}
		if candidate == "*" {
			wildcard = true
		}
	}
	if wildcard {
		return originAny
	}
	return originDenied
}
