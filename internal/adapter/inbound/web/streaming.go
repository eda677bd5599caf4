package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// HermodMiddleware determines whether the client is reachable through the
// push proxy, validates any session token against the current user, and
// enforces the Accept contract. It must run after HeimdallMiddleware.
func HermodMiddleware(streamingHeader string, tokens *identity.ChannelTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supports := r.Header.Get(streamingHeader) == "true"
			accept := r.Header.Get(mcp.AcceptHeader)

			// A client not reachable via the proxy cannot be streamed to
			// directly; strip the SSE media type so downstream never
			// attempts to hold the connection.
			if !supports && strings.Contains(accept, mcp.ContentTypeSSE) {
				stripped := strings.ReplaceAll(accept, mcp.ContentTypeSSE, "")
				r.Header.Set(mcp.AcceptHeader, stripped)
			}

			// A session token, when present, must belong to this user.
			channel := r.Header.Get(mcp.SessionIDHeader)
			if channel != "" {
				user := UserFrom(r.Context())
				if user == nil {
					writeError(w, channel, http.StatusUnauthorized, mcp.InvalidRequest, "Unauthorized")
					return
				}
				if _, err := tokens.Validate(user, channel); err != nil {
					writeError(w, channel, http.StatusUnauthorized, mcp.InvalidRequest, "Invalid session")
					return
				}
			}

			// The endpoint only speaks JSON and SSE.
			if !strings.Contains(accept, mcp.ContentTypeJSON) && !strings.Contains(accept, mcp.ContentTypeSSE) {
				writeError(w, channel, http.StatusNotAcceptable, mcp.InvalidRequest,
					"Client must accept application/json or text/event-stream")
				return
			}

			ctx := context.WithValue(r.Context(), streamingContextKey{}, supports)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
