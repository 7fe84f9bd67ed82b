package server

import (
	"context"
	"net/http"

	"filebox/internal/auth"
	"filebox/internal/models"
)

type identityContextKey struct{}

func contextWithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func identityFromContext(ctx context.Context) (models.Identity, bool) {
	if ctx == nil {
		return "", false
	}
	identity, ok := ctx.Value(identityContextKey{}).(models.Identity)
	return identity, ok && identity != ""
}

// withAuth resolves the bearer credential through the Identity Gate and
// stores the identity on the request context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		identity, err := s.files.Authenticate(r.Context(), raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), identity)))
	})
}

func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		s.writeServiceError(w, r, models.ErrMissingCredential)
		return "", false
	}
	return identity, true
}
