// Package mcp provides the MCP wire vocabulary for odinmcp: JSON-RPC
// message handling, protocol constants, error codes, and the SSE framing
// used when pushing server messages through the Hermod proxy.
package mcp

// LatestProtocolVersion is the MCP protocol revision this server advertises.
const LatestProtocolVersion = "2025-06-18"

// Header names consumed and emitted by the HTTP transport.
const (
	SessionIDHeader   = "Mcp-Session-Id"
	LastEventIDHeader = "Last-Event-Id"
	ContentTypeHeader = "Content-Type"
	AcceptHeader      = "Accept"
)

// GRIP instruction headers understood by the Hermod push proxy.
const (
	GripHoldHeader      = "Grip-Hold"
	GripHoldModeStream  = "stream"
	GripChannelHeader   = "Grip-Channel"
	GripKeepAliveHeader = "Grip-Keep-Alive"
)

// Content types accepted on the MCP endpoint.
const (
	ContentTypeJSON = "application/json"
	ContentTypeSSE  = "text/event-stream"
)

// Well-known method names the core dispatches on.
const (
	MethodInitialize            = "initialize"
	MethodNotificationsInit     = "notifications/initialized"
	MethodNotificationsCancel   = "notifications/cancelled"
	MethodNotificationsProgress = "notifications/progress"
	MethodListRoots             = "roots/list"
	MethodPing                  = "ping"
)
