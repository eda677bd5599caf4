package web

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// Context keys for per-request state. Typed struct keys, never strings.
type (
	userContextKey      struct{}
	streamingContextKey struct{}
	requestIDContextKey struct{}
	loggerContextKey    struct{}
)

// UserFrom retrieves the authenticated user from the request context.
func UserFrom(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey{}).(*identity.User)
	return user
}

// SupportsStreaming reports whether the request arrived through the Hermod
// push proxy and can therefore be held as an SSE stream.
func SupportsStreaming(ctx context.Context) bool {
	supports, _ := ctx.Value(streamingContextKey{}).(bool)
	return supports
}

// LoggerFrom retrieves the request-enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RequestIDMiddleware extracts or generates a request id and enriches the
// logger with it. The id is echoed in X-Request-ID for correlation.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
			ctx = context.WithValue(ctx, loggerContextKey{}, enriched)

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeimdallMiddleware populates the per-request user from the trusted
// userinfo header injected by the identity proxy. The header value is
// base64-encoded JSON handed to the user factory. Missing or malformed
// userinfo is a 401; this middleware must run before the streaming
// middleware, which validates session tokens against the user.
func HeimdallMiddleware(headerName string, factory identity.Factory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoded := r.Header.Get(headerName)
			if encoded == "" {
				writeError(w, r.Header.Get(mcp.SessionIDHeader), http.StatusUnauthorized,
					mcp.InvalidRequest, "Unauthorized")
				return
			}

			info, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				writeError(w, r.Header.Get(mcp.SessionIDHeader), http.StatusUnauthorized,
					mcp.InvalidRequest, "Unauthorized")
				return
			}
			user, err := factory(info)
			if err != nil {
				writeError(w, r.Header.Get(mcp.SessionIDHeader), http.StatusUnauthorized,
					mcp.InvalidRequest, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
