package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// userIDKey is the context key under which the authenticated user id is
// stored by Middleware.
type userIDKey struct{}

// Middleware extracts a bearer token from the Authorization header,
// verifies it, and stores the user id in the request context.
// Requests without a valid token are rejected with 401 before reaching
// the handler.
func Middleware(svc *TokenService, unauthorized func(w http.ResponseWriter, r *http.Request, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r, "missing authentication token")
				return
			}

			userID, err := svc.Verify(token)
			if err != nil {
				if errors.Is(err, ErrExpiredToken) {
					unauthorized(w, r, "token expired")
					return
				}
				unauthorized(w, r, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id stored by Middleware.
// The bool is false when the request did not pass through Middleware.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey{}).(string)
	return v, ok && v != ""
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
