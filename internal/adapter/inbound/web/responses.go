package web

import (
	"fmt"
	"net/http"

	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// writeError writes a JSON-RPC error envelope with a null id. The HTTP
// status and the JSON-RPC code are independent axes; transport failures use
// 4xx statuses with standard codes.
func writeError(w http.ResponseWriter, channel string, status int, code int64, message string) {
	w.Header().Set(mcp.ContentTypeHeader, mcp.ContentTypeJSON)
	if channel != "" {
		w.Header().Set(mcp.SessionIDHeader, channel)
	}
	w.WriteHeader(status)
	_, _ = w.Write(mcp.EncodeErrorResponse(nil, mcp.ErrorData{Code: code, Message: message}))
}

// writeJSON writes an optional JSON body with the session header.
func writeJSON(w http.ResponseWriter, channel string, status int, body []byte) {
	w.Header().Set(mcp.ContentTypeHeader, mcp.ContentTypeJSON)
	if channel != "" {
		w.Header().Set(mcp.SessionIDHeader, channel)
	}
	w.WriteHeader(status)
	if body != nil {
		_, _ = w.Write(body)
	}
}

// writeStreamingHold answers with the GRIP instructions that make the push
// proxy hold the connection open as an SSE stream on the session's channel.
func writeStreamingHold(w http.ResponseWriter, channel string, keepAliveSeconds int) {
	h := w.Header()
	h.Set(mcp.ContentTypeHeader, mcp.ContentTypeSSE)
	h.Set(mcp.GripHoldHeader, mcp.GripHoldModeStream)
	h.Set(mcp.GripChannelHeader, channel)
	h.Set(mcp.GripKeepAliveHeader, fmt.Sprintf("\\n; format=cstring; timeout=%d", keepAliveSeconds))
	h.Set(mcp.SessionIDHeader, channel)
	h.Set(mcp.AcceptHeader, mcp.ContentTypeJSON)
	w.WriteHeader(http.StatusAccepted)
}
