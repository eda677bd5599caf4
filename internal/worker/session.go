package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/theNullP0inter/odinmcp/internal/dispatch"
	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// DefaultRequestTimeout bounds SendRequest when the caller does not pass an
// explicit timeout. It is aggressive for tool roundtrips; callers should
// generally choose their own.
const DefaultRequestTimeout = 3 * time.Second

// resultPollInterval is how often SendRequest polls the result backend.
const resultPollInterval = 100 * time.Millisecond

// ProgressFunc receives client progress notifications for an in-flight
// server-initiated request.
type ProgressFunc func(progress float64, total *float64, message string)

// RequestOptions tune a single SendRequest call.
type RequestOptions struct {
	// Timeout bounds the wall-clock wait for the response. Zero means
	// DefaultRequestTimeout. The timeout does not revoke the task.
	Timeout time.Duration

	// Progress, when set, is invoked for each distinct progress
	// notification the client tags with this request's id.
	Progress ProgressFunc
}

// Session is the object user handlers see. It is reconstituted per task
// from the channel token and the user; its only durable state lives in the
// push proxy's subscription and the result backend.
type Session struct {
	channel      string
	user         *identity.User
	initOptions  mcp.InitializationOptions
	clientParams json.RawMessage
	publisher    outbound.Publisher
	backend      outbound.ResultBackend
	broker       outbound.Broker
	logger       *slog.Logger
}

// NewSession binds a session to a channel and user for the duration of one
// task.
func NewSession(
	channel string,
	user *identity.User,
	initOptions mcp.InitializationOptions,
	clientParams json.RawMessage,
	publisher outbound.Publisher,
	backend outbound.ResultBackend,
	broker outbound.Broker,
	logger *slog.Logger,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		channel:      channel,
		user:         user,
		initOptions:  initOptions,
		clientParams: clientParams,
		publisher:    publisher,
		backend:      backend,
		broker:       broker,
		logger:       logger,
	}
}

// User returns the identity the session is bound to.
func (s *Session) User() *identity.User { return s.user }

// Channel returns the channel token naming this session.
func (s *Session) Channel() string { return s.channel }

// ClientParams returns the initialize params captured at session creation.
func (s *Session) ClientParams() json.RawMessage { return s.clientParams }

// InitOptions returns the server identity advertised at initialize.
func (s *Session) InitOptions() mcp.InitializationOptions { return s.initOptions }

// publish frames a JSON-RPC message as SSE and pushes it to the channel.
func (s *Session) publish(ctx context.Context, msg jsonrpc.Message) error {
	raw, err := mcp.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return s.publisher.Publish(ctx, s.channel, mcp.SSEFrame(raw))
}

// publishRaw pushes pre-encoded JSON-RPC bytes to the channel.
func (s *Session) publishRaw(ctx context.Context, payload []byte) error {
	return s.publisher.Publish(ctx, s.channel, mcp.SSEFrame(payload))
}

// SendNotification publishes a server notification; fire-and-forget.
func (s *Session) SendNotification(ctx context.Context, method string, params any) error {
	notif, err := mcp.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.publish(ctx, notif)
}

// sendResponse publishes the response (or error) for an inbound request.
// Responses for requests the client has since cancelled are dropped: the
// revocation may have landed after the handler already ran, and a revoked
// task must not publish further messages to the channel.
func (s *Session) sendResponse(ctx context.Context, requestID json.RawMessage, result any, errData *mcp.ErrorData) error {
	taskID := dispatch.ResponseTaskID(mcp.IDString(requestID), s.user, s.channel)
	if revoked, err := s.broker.IsRevoked(ctx, taskID); err == nil && revoked {
		s.logger.Debug("dropping response for revoked request", "request_id", string(requestID))
		return nil
	}

	var payload []byte
	if errData != nil {
		payload = mcp.EncodeErrorResponse(requestID, *errData)
	} else {
		var err error
		payload, err = mcp.EncodeResponse(requestID, result)
		if err != nil {
			return err
		}
	}
	return s.publishRaw(ctx, payload)
}

// SendRequest publishes a server-initiated request on the channel and
// blocks until the client's response lands in the result backend under the
// deterministic task id, the request fails, or the timeout elapses. The
// decoded result is unmarshaled into result when non-nil.
func (s *Session) SendRequest(ctx context.Context, method string, params any, result any, opts *RequestOptions) error {
	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	requestID := uuid.NewString()
	taskID := dispatch.ResponseTaskID(requestID, s.user, s.channel)

	encodedParams, err := encodeRequestParams(params, requestID, opts.Progress != nil)
	if err != nil {
		return err
	}
	reqID, err := jsonrpc.MakeID(requestID)
	if err != nil {
		return fmt.Errorf("making request id: %w", err)
	}
	if err := s.publish(ctx, &jsonrpc.Request{ID: reqID, Method: method, Params: encodedParams}); err != nil {
		return err
	}

	return s.awaitResponse(ctx, taskID, timeout, opts.Progress, result)
}

// encodeRequestParams marshals params, injecting params._meta.progressToken
// when a progress callback is in play so the client tags its progress
// notifications with an id the worker can map back to the task.
func encodeRequestParams(params any, requestID string, wantProgress bool) (json.RawMessage, error) {
	if params == nil && !wantProgress {
		return nil, nil
	}
	var decoded map[string]any
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("request params must encode to an object: %w", err)
		}
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	if wantProgress {
		meta, _ := decoded["_meta"].(map[string]any)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["progressToken"] = requestID
		decoded["_meta"] = meta
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	return out, nil
}

// awaitResponse polls the result backend until a terminal state or timeout.
func (s *Session) awaitResponse(ctx context.Context, taskID string, timeout time.Duration, progress ProgressFunc, result any) error {
	start := time.Now()
	ticker := time.NewTicker(resultPollInterval)
	defer ticker.Stop()

	var lastProgress uint64
	for {
		res, err := s.backend.GetResult(ctx, taskID)
		if err != nil {
			return fmt.Errorf("polling result backend: %w", err)
		}

		switch res.State {
		case outbound.TaskProgress:
			if progress != nil {
				sum := xxhash.Sum64String(res.Payload)
				if sum != lastProgress {
					lastProgress = sum
					s.fireProgress(progress, res.Payload)
				}
			}
		case outbound.TaskSucceeded:
			return decodeResponsePayload(res.Payload, result)
		case outbound.TaskFailed:
			return mcp.NewError(mcp.HandlerNotFound, "request failed: "+res.Payload)
		case outbound.TaskRevoked:
			return mcp.NewError(mcp.HandlerNotFound, "request cancelled")
		}

		if time.Since(start) > timeout {
			return mcp.NewError(mcp.HandlerNotFound, "Request timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fireProgress decodes a stored progress notification and invokes the
// callback. Undecodable payloads are logged and skipped.
func (s *Session) fireProgress(progress ProgressFunc, payload string) {
	var notif struct {
		Params mcp.ProgressParams `json:"params"`
	}
	if err := json.Unmarshal([]byte(payload), &notif); err != nil {
		s.logger.Warn("undecodable progress payload", "error", err)
		return
	}
	progress(notif.Params.Progress, notif.Params.Total, notif.Params.Message)
}

// decodeResponsePayload interprets the stored response JSON: an error
// response raises, a success response unmarshals its result.
func decodeResponsePayload(payload string, result any) error {
	msg, err := mcp.Decode([]byte(payload))
	if err != nil {
		return mcp.NewError(mcp.HandlerNotFound, "invalid response")
	}
	resp := msg.Response()
	if resp == nil {
		return mcp.NewError(mcp.HandlerNotFound, "invalid response")
	}
	if resp.Error != nil {
		var data mcp.ErrorData
		var wire struct {
			Error mcp.ErrorData `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &wire); err == nil {
			data = wire.Error
		} else {
			data = mcp.ErrorData{Code: mcp.InternalError, Message: resp.Error.Error()}
		}
		return &mcp.Error{Data: data}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decoding response result: %w", err)
	}
	return nil
}

// ListRoots asks the client for its root list.
func (s *Session) ListRoots(ctx context.Context, opts *RequestOptions) (*mcp.ListRootsResult, error) {
	var result mcp.ListRootsResult
	if err := s.SendRequest(ctx, mcp.MethodListRoots, nil, &result, opts); err != nil {
		return nil, err
	}
	return &result, nil
}

// Terminate publishes the channel-close control, ending the client's held
// stream.
func (s *Session) Terminate(ctx context.Context) error {
	return s.publisher.CloseChannel(ctx, s.channel)
}
