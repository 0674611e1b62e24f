package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKeyUserID struct{}

// UserID retrieves the authenticated user id from the request context.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKeyUserID{}).(int64)
	return id, ok
}

// WithUserID returns a context carrying an authenticated user id.
// Exported for handler tests.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKeyUserID{}, userID)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved user id in the request context.
func RequireAuth(resolver *Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.Warn("request missing bearer token", zap.String("path", r.URL.Path))
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			userID, err := resolver.Resolve(token)
			if err != nil {
				logger.Warn("request with invalid token",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "unauthorized",
		"error_description": msg,
	})
}
