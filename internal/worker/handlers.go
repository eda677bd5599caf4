package worker

import (
	"context"
	"encoding/json"
)

// RequestHandler executes one MCP request method. The returned value is
// marshaled into the JSON-RPC result; returning *mcp.Error surfaces its
// embedded error data unchanged, any other error becomes code 0.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler processes one MCP notification method. Errors are
// logged and swallowed; notifications have no reply channel.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Handlers is the method-keyed dispatch table consumed by the runtime.
// It is populated at startup and must not be mutated afterwards.
type Handlers struct {
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
}

// NewHandlers creates an empty dispatch table.
func NewHandlers() *Handlers {
	return &Handlers{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
	}
}

// HandleRequest registers a request handler for a method.
func (h *Handlers) HandleRequest(method string, fn RequestHandler) {
	h.requests[method] = fn
}

// HandleNotification registers a notification handler for a method.
func (h *Handlers) HandleNotification(method string, fn NotificationHandler) {
	h.notifications[method] = fn
}

// Request looks up the handler for a request method.
func (h *Handlers) Request(method string) (RequestHandler, bool) {
	fn, ok := h.requests[method]
	return fn, ok
}

// Notification looks up the handler for a notification method.
func (h *Handlers) Notification(method string) (NotificationHandler, bool) {
	fn, ok := h.notifications[method]
	return fn, ok
}
