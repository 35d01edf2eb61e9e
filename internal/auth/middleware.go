package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ctxKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, or "" when absent.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	Verifier TokenVerifier
	// DevUserID authenticates requests without a bearer token. Leave empty in
	// production.
	DevUserID string
	Logger    *zap.Logger
}

// Middleware requires a valid Clerk bearer token and stores its subject in the
// request context.
func Middleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, hasToken := bearerToken(r)
			if !hasToken {
				if opts.DevUserID != "" {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), opts.DevUserID)))
					return
				}
				unauthorized(w)
				return
			}
			if opts.Verifier == nil {
				unauthorized(w)
				return
			}
			claims, err := opts.Verifier.VerifyToken(r.Context(), token)
			if err != nil {
				logger.Debug("rejected bearer token", zap.Error(err))
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}
