package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/coffeeshop/shop/internal/auth"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier resolves a bearer token into the caller's identity.
type TokenVerifier interface {
	Authenticate(token string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// identity in the request context.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			id, err := verifier.Authenticate(token)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
			return
		}
		if !id.IsAdmin {
			respondError(w, http.StatusForbidden, "permission_denied", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware echoes the chi request id back to the client.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok && id.UserID != ""
}

// userIDFromContext returns "" when the request carries no identity; the
// services answer that with Unauthenticated.
func userIDFromContext(ctx context.Context) string {
	id, _ := identityFromContext(ctx)
	return id.UserID
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
