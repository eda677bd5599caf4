package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// Dispatcher is the slice of the worker dispatcher the transport needs.
type Dispatcher interface {
	HandleMCPRequest(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) error
	HandleMCPNotification(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) error
	HandleMCPResponse(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) error
	TerminateSession(ctx context.Context, channel string, user *identity.User) error
}

// InitializeResultFunc synthesizes the initialize result payload.
type InitializeResultFunc func() mcp.InitializeResult

// Transport is the per-endpoint state machine for the streamable-HTTP MCP
// endpoint. Each request is handled in isolation; the transport owns
// nothing durable.
type Transport struct {
	initResult       InitializeResultFunc
	tokens           *identity.ChannelTokens
	dispatcher       Dispatcher
	keepAliveSeconds int
}

// NewTransport creates the endpoint handler.
func NewTransport(initResult InitializeResultFunc, tokens *identity.ChannelTokens, dispatcher Dispatcher, keepAliveSeconds int) *Transport {
	return &Transport{
		initResult:       initResult,
		tokens:           tokens,
		dispatcher:       dispatcher,
		keepAliveSeconds: keepAliveSeconds,
	}
}

// ServeHTTP routes by method. Everything else is 405.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		writeError(w, r.Header.Get(mcp.SessionIDHeader), http.StatusMethodNotAllowed,
			mcp.InvalidRequest, "Method not allowed")
	}
}

// handlePost validates the body as a JSON-RPC message and routes it:
// initialize is answered synchronously with a fresh channel token, all
// other traffic is acknowledged with 202 after enqueueing.
func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	channel := r.Header.Get(mcp.SessionIDHeader)
	logger := LoggerFrom(r.Context())

	if contentType := r.Header.Get(mcp.ContentTypeHeader); contentType != "" &&
		!strings.HasPrefix(contentType, mcp.ContentTypeJSON) {
		writeError(w, channel, http.StatusBadRequest, mcp.ParseError,
			"Parse error: content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, channel, http.StatusBadRequest, mcp.ParseError,
				"Parse error: request body too large")
			return
		}
		writeError(w, channel, http.StatusBadRequest, mcp.ParseError,
			"Parse error: failed to read request body")
		return
	}
	if len(body) == 0 {
		writeError(w, channel, http.StatusBadRequest, mcp.InvalidRequest,
			"Request body cannot be empty for POST")
		return
	}
	if !json.Valid(body) {
		writeError(w, channel, http.StatusBadRequest, mcp.ParseError,
			"Parse error: invalid JSON was received by the server")
		return
	}

	msg, err := mcp.Decode(body)
	if err != nil {
		writeError(w, channel, http.StatusBadRequest, mcp.InvalidRequest,
			"Invalid Request: the JSON sent is not a valid JSON-RPC message")
		return
	}

	// Initialize is the one request served synchronously: it mints the
	// session and must not require one.
	if msg.IsRequest() && msg.Method() == mcp.MethodInitialize {
		t.handleInitialize(w, r, msg, user)
		return
	}

	if channel == "" {
		writeError(w, "", http.StatusBadRequest, mcp.InvalidRequest,
			"Session ID is required for POST")
		return
	}

	ctx := r.Context()
	switch {
	case msg.IsRequest():
		err = t.dispatcher.HandleMCPRequest(ctx, msg, channel, user)
	case msg.IsNotification():
		err = t.dispatcher.HandleMCPNotification(ctx, msg, channel, user)
	case msg.IsResponse():
		err = t.dispatcher.HandleMCPResponse(ctx, msg, channel, user)
	default:
		writeError(w, channel, http.StatusBadRequest, mcp.InvalidRequest,
			"Invalid Request: the JSON sent is not a valid JSON-RPC message")
		return
	}
	if err != nil {
		logger.Error("dispatching task", "method", msg.Method(), "error", err)
		writeError(w, channel, http.StatusInternalServerError, mcp.InternalError, "Internal error")
		return
	}

	// When the client finishes its handshake through the push proxy, the
	// 202 itself becomes the held SSE stream.
	if msg.IsNotification() && msg.Method() == mcp.MethodNotificationsInit && SupportsStreaming(ctx) {
		writeStreamingHold(w, channel, t.keepAliveSeconds)
		return
	}

	writeJSON(w, channel, http.StatusAccepted, nil)
}

// handleInitialize answers the initialize request and mints the channel
// token binding this user to the captured client params.
func (t *Transport) handleInitialize(w http.ResponseWriter, r *http.Request, msg *mcp.Message, user *identity.User) {
	logger := LoggerFrom(r.Context())

	var clientParams json.RawMessage
	if req := msg.Request(); req != nil {
		clientParams = req.Params
	}
	channel, err := t.tokens.Issue(user, clientParams)
	if err != nil {
		logger.Error("minting channel token", "error", err)
		writeError(w, "", http.StatusInternalServerError, mcp.InternalError, "Internal error")
		return
	}

	body, err := mcp.EncodeResponse(msg.RawID(), t.initResult())
	if err != nil {
		logger.Error("encoding initialize result", "error", err)
		writeError(w, channel, http.StatusInternalServerError, mcp.InternalError, "Internal error")
		return
	}
	writeJSON(w, channel, http.StatusOK, body)
}

// handleGet opens the server-to-client stream by instructing the push proxy
// to hold the connection on the session's channel. Clients not reachable
// through the proxy cannot stream.
func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	channel := r.Header.Get(mcp.SessionIDHeader)
	if !SupportsStreaming(r.Context()) {
		writeError(w, channel, http.StatusNotAcceptable, mcp.InvalidRequest,
			"Client must accept application/json or text/event-stream")
		return
	}
	if channel == "" {
		writeError(w, "", http.StatusBadRequest, mcp.InvalidRequest,
			"Session ID is required for GET")
		return
	}
	// Resumable streams are not supported; the header is accepted and
	// ignored.
	if lastEventID := r.Header.Get(mcp.LastEventIDHeader); lastEventID != "" {
		LoggerFrom(r.Context()).Debug("ignoring last-event-id", "last_event_id", lastEventID)
	}
	writeStreamingHold(w, channel, t.keepAliveSeconds)
}

// handleDelete terminates the session: the worker publishes the
// channel-close control and the proxy drops the held stream.
func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	channel := r.Header.Get(mcp.SessionIDHeader)
	if channel == "" {
		writeError(w, "", http.StatusBadRequest, mcp.InvalidRequest,
			"Session ID is required for DELETE")
		return
	}
	user := UserFrom(r.Context())
	if err := t.dispatcher.TerminateSession(r.Context(), channel, user); err != nil {
		LoggerFrom(r.Context()).Error("dispatching session termination", "error", err)
		writeError(w, channel, http.StatusInternalServerError, mcp.InternalError, "Internal error")
		return
	}
	writeJSON(w, channel, http.StatusOK, nil)
}
