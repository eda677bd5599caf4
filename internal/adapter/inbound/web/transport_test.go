package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

const testSecret = "test-secret"

// recordingDispatcher captures dispatched messages per task kind.
type recordingDispatcher struct {
	mu            sync.Mutex
	requests      []string
	notifications []string
	responses     []string
	terminations  []string
}

func (d *recordingDispatcher) HandleMCPRequest(_ context.Context, msg *mcp.Message, channel string, _ *identity.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, msg.Method())
	return nil
}

func (d *recordingDispatcher) HandleMCPNotification(_ context.Context, msg *mcp.Message, channel string, _ *identity.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, msg.Method())
	return nil
}

func (d *recordingDispatcher) HandleMCPResponse(_ context.Context, msg *mcp.Message, channel string, _ *identity.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append(d.responses, msg.IDString())
	return nil
}

func (d *recordingDispatcher) TerminateSession(_ context.Context, channel string, _ *identity.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminations = append(d.terminations, channel)
	return nil
}

func (d *recordingDispatcher) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests) + len(d.notifications) + len(d.responses) + len(d.terminations)
}

// testEnv bundles the assembled handler with its collaborators.
type testEnv struct {
	handler    http.Handler
	dispatcher *recordingDispatcher
	tokens     *identity.ChannelTokens
	user       *identity.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens := identity.NewChannelTokens([]byte(testSecret))
	dispatcher := &recordingDispatcher{}
	initResult := func() mcp.InitializeResult {
		return mcp.InitializeResult{
			ProtocolVersion: mcp.LatestProtocolVersion,
			ServerInfo:      mcp.Implementation{Name: "odin-test", Version: "0.0.1"},
			Instructions:    "test",
			Capabilities:    mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
		}
	}
	transport := NewTransport(initResult, tokens, dispatcher, 10)
	server := NewServer(transport, tokens, "x-userinfo", "x-hermod-stream")
	return &testEnv{
		handler:    server.Handler(),
		dispatcher: dispatcher,
		tokens:     tokens,
		user:       &identity.User{UserID: "u1", SessionID: "s1", Scope: []string{"mcp"}},
	}
}

// userInfoHeader encodes the standard test user.
func userInfoHeader() string {
	return base64.StdEncoding.EncodeToString(
		[]byte(`{"user_id":"u1","sid":"s1","scope":"openid mcp"}`))
}

// doRequest performs a request against the handler with common headers.
func (e *testEnv) doRequest(t *testing.T, method, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, "/", reader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-userinfo", userInfoHeader())
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// session mints a valid channel token for the test user.
func (e *testEnv) session(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.Issue(e.user, json.RawMessage(`{"protocolVersion":"2025-06-18"}`))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) mcp.ErrorData {
	t.Helper()
	var envelope struct {
		ID    json.RawMessage `json:"id"`
		Error mcp.ErrorData   `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshaling error body %q: %v", rec.Body.String(), err)
	}
	if string(envelope.ID) != "null" {
		t.Errorf("error id = %s, want null", envelope.ID)
	}
	return envelope.Error
}

func TestInitialize_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"agent"}}}`,
		nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	token := rec.Header().Get(mcp.SessionIDHeader)
	if token == "" {
		t.Fatal("no Mcp-Session-Id header on initialize response")
	}
	claims, err := env.tokens.Validate(env.user, token)
	if err != nil {
		t.Fatalf("minted token does not validate for the same user: %v", err)
	}
	if !strings.Contains(string(claims.ClientParams), "agent") {
		t.Errorf("client params = %s, want captured initialize params", claims.ClientParams)
	}

	var body struct {
		ID     json.RawMessage `json:"id"`
		Result struct {
			ProtocolVersion string `json:"protocolVersion"`
			ServerInfo      struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling body: %v", err)
	}
	if string(body.ID) != "1" {
		t.Errorf("response id = %s, want 1", body.ID)
	}
	if body.Result.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Errorf("protocolVersion = %q, want %q", body.Result.ProtocolVersion, mcp.LatestProtocolVersion)
	}
	if body.Result.ServerInfo.Name != "odin-test" {
		t.Errorf("serverInfo.name = %q, want odin-test", body.Result.ServerInfo.Name)
	}

	if env.dispatcher.total() != 0 {
		t.Errorf("initialize enqueued %d tasks, want 0", env.dispatcher.total())
	}
}

func TestInitialize_DoesNotRequireSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestPost_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		func(r *http.Request) { r.Header.Del("x-userinfo") })

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if env.dispatcher.total() != 0 {
		t.Errorf("unauthorized request enqueued %d tasks, want 0", env.dispatcher.total())
	}
}

func TestPost_MalformedUserInfo(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		func(r *http.Request) { r.Header.Set("x-userinfo", "not base64!!") })
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestPost_NotAcceptable(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		func(r *http.Request) { r.Header.Set("Accept", "text/plain") })

	if rec.Code != http.StatusNotAcceptable {
		t.Errorf("status = %d, want 406", rec.Code)
	}
	if env.dispatcher.total() != 0 {
		t.Error("406 request still enqueued a task")
	}
}

func TestPost_BodyValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int64
	}{
		{"empty body", "", mcp.InvalidRequest},
		{"invalid json", `{"jsonrpc":`, mcp.ParseError},
		{"not a message", `{"foo":"bar"}`, mcp.InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.doRequest(t, http.MethodPost, tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			errData := decodeErrorBody(t, rec)
			if errData.Code != tt.wantCode {
				t.Errorf("error code = %d, want %d", errData.Code, tt.wantCode)
			}
			if env.dispatcher.total() != 0 {
				t.Error("invalid body still enqueued a task")
			}
		})
	}
}

func TestPost_WrongContentType(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		func(r *http.Request) { r.Header.Set("Content-Type", "text/plain") })
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if errData := decodeErrorBody(t, rec); errData.Code != mcp.ParseError {
		t.Errorf("error code = %d, want %d", errData.Code, mcp.ParseError)
	}
}

func TestPost_NonInitialize(t *testing.T) {
	toolCall := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":1,"b":2}}}`

	t.Run("missing session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.doRequest(t, http.MethodPost, toolCall, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.doRequest(t, http.MethodPost, toolCall, func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, "forged-token")
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("foreign session", func(t *testing.T) {
		env := newTestEnv(t)
		other := &identity.User{UserID: "intruder", SessionID: "s9"}
		foreign, err := env.tokens.Issue(other, nil)
		if err != nil {
			t.Fatal(err)
		}
		rec := env.doRequest(t, http.MethodPost, toolCall, func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, foreign)
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid session dispatches request", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.session(t)
		rec := env.doRequest(t, http.MethodPost, toolCall, func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, session)
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
		}
		if rec.Body.Len() != 0 {
			t.Errorf("202 body = %q, want empty", rec.Body.String())
		}
		if got := rec.Header().Get(mcp.SessionIDHeader); got != session {
			t.Errorf("session header = %q, want echoed token", got)
		}
		if len(env.dispatcher.requests) != 1 || env.dispatcher.requests[0] != "tools/call" {
			t.Errorf("dispatched requests = %v, want [tools/call]", env.dispatcher.requests)
		}
	})
}

func TestPost_Notification(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":"x"}}`,
		func(r *http.Request) { r.Header.Set(mcp.SessionIDHeader, session) })

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(env.dispatcher.notifications) != 1 {
		t.Errorf("dispatched notifications = %v", env.dispatcher.notifications)
	}
}

func TestPost_InitializedNotification_StreamingHold(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, session)
			r.Header.Set("x-hermod-stream", "true")
			r.Header.Set("Accept", "application/json, text/event-stream")
		})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if hold := rec.Header().Get(mcp.GripHoldHeader); hold != mcp.GripHoldModeStream {
		t.Errorf("Grip-Hold = %q, want stream", hold)
	}
	if ch := rec.Header().Get(mcp.GripChannelHeader); ch != session {
		t.Errorf("Grip-Channel = %q, want session token", ch)
	}
	if ct := rec.Header().Get("Content-Type"); ct != mcp.ContentTypeSSE {
		t.Errorf("Content-Type = %q, want %q", ct, mcp.ContentTypeSSE)
	}
}

func TestPost_Response(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t)
	rec := env.doRequest(t, http.MethodPost,
		`{"jsonrpc":"2.0","id":"srv-req-1","result":{"roots":[]}}`,
		func(r *http.Request) { r.Header.Set(mcp.SessionIDHeader, session) })

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(env.dispatcher.responses) != 1 || env.dispatcher.responses[0] != "srv-req-1" {
		t.Errorf("dispatched responses = %v, want [srv-req-1]", env.dispatcher.responses)
	}
}

func TestGet(t *testing.T) {
	t.Run("not proxied", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.session(t)
		rec := env.doRequest(t, http.MethodGet, "", func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, session)
		})
		if rec.Code != http.StatusNotAcceptable {
			t.Errorf("status = %d, want 406", rec.Code)
		}
	})

	t.Run("proxied without session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.doRequest(t, http.MethodGet, "", func(r *http.Request) {
			r.Header.Set("x-hermod-stream", "true")
			r.Header.Set("Accept", "text/event-stream")
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("proxied with session holds stream", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.session(t)
		rec := env.doRequest(t, http.MethodGet, "", func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, session)
			r.Header.Set("x-hermod-stream", "true")
			r.Header.Set("Accept", "text/event-stream")
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		if rec.Header().Get(mcp.GripHoldHeader) != mcp.GripHoldModeStream {
			t.Error("missing Grip-Hold: stream")
		}
		if rec.Header().Get(mcp.GripChannelHeader) != session {
			t.Error("Grip-Channel does not carry the session token")
		}
		keepAlive := rec.Header().Get(mcp.GripKeepAliveHeader)
		if !strings.Contains(keepAlive, "format=cstring") || !strings.Contains(keepAlive, "timeout=10") {
			t.Errorf("Grip-Keep-Alive = %q", keepAlive)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("without session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.doRequest(t, http.MethodDelete, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("terminates session", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.session(t)
		rec := env.doRequest(t, http.MethodDelete, "", func(r *http.Request) {
			r.Header.Set(mcp.SessionIDHeader, session)
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if len(env.dispatcher.terminations) != 1 || env.dispatcher.terminations[0] != session {
			t.Errorf("terminations = %v", env.dispatcher.terminations)
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPatch, "{}", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHermodMiddleware_StripsSSEWhenNotProxied(t *testing.T) {
	tokens := identity.NewChannelTokens([]byte(testSecret))
	var sawAccept string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	})
	handler := HermodMiddleware("x-hermod-stream", tokens)(inner)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if strings.Contains(sawAccept, "text/event-stream") {
		t.Errorf("downstream Accept = %q, want SSE stripped", sawAccept)
	}
	if !strings.Contains(sawAccept, "application/json") {
		t.Errorf("downstream Accept = %q, want json kept", sawAccept)
	}
}
