package http

import (
	"context"
	"net/http"
	"strings"
)

// Authenticator resolves a bearer token to an owner id. How tokens are
// issued is outside this service; the middleware only trusts the mapping.
type Authenticator interface {
	OwnerForToken(ctx context.Context, token string) (string, bool)
}

// TokenAuthenticator is a static token table, loaded from configuration.
type TokenAuthenticator map[string]string

func (a TokenAuthenticator) OwnerForToken(_ context.Context, token string) (string, bool) {
	owner, ok := a[token]
	return owner, ok
}

type contextKey string

const ownerContextKey contextKey = "owner_id"

// ownerID returns the authenticated owner for the request. The auth
// middleware guarantees it is set on every handler behind it.
func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerContextKey).(string)
	return owner
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		owner, ok := s.auth.OwnerForToken(r.Context(), token)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ownerContextKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
