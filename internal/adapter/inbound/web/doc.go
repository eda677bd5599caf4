// Package web is the inbound HTTP adapter: the single streamable-HTTP MCP
// endpoint plus its middleware chain, metrics, and health handlers.
//
// The endpoint accepts POST, GET, and DELETE. POST carries client JSON-RPC
// messages; work is dispatched to the broker and acknowledged with 202.
// GET, for clients reachable through the Hermod push proxy, answers with
// GRIP hold headers so the proxy keeps the SSE stream open on the session's
// channel. DELETE terminates the session.
//
// Nothing here holds session state: the channel token carried in the
// Mcp-Session-Id header is the session, and every server-to-client byte
// flows through the push proxy, not this process.
package web
