package mcp

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Message wraps a decoded JSON-RPC message together with its raw bytes.
// The raw bytes are kept because task payloads carry the original wire form
// and because the SDK's ID type does not round-trip through interface{}.
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Decoded contains the parsed JSON-RPC message.
	// The concrete type is either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received.
	Timestamp time.Time
}

// Decode parses raw JSON-RPC bytes into a Message.
func Decode(raw []byte) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return &Message{Raw: raw, Decoded: decoded, Timestamp: time.Now()}, nil
}

// IsRequest returns true if the message is a JSON-RPC request with an id.
func (m *Message) IsRequest() bool {
	req, ok := m.Decoded.(*jsonrpc.Request)
	return ok && req.ID != (jsonrpc.ID{})
}

// IsNotification returns true if the message is a request without an id.
func (m *Message) IsNotification() bool {
	req, ok := m.Decoded.(*jsonrpc.Request)
	return ok && req.ID == (jsonrpc.ID{})
}

// IsResponse returns true if the message is a JSON-RPC response, successful
// or error.
func (m *Message) IsResponse() bool {
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request or notification.
func (m *Message) Method() string {
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// Request returns the underlying request, or nil.
func (m *Message) Request() *jsonrpc.Request {
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying response, or nil.
func (m *Message) Response() *jsonrpc.Response {
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// Params returns the raw params of a request or notification.
func (m *Message) Params() json.RawMessage {
	req := m.Request()
	if req == nil {
		return nil
	}
	return req.Params
}

// Meta extracts params._meta as a raw JSON object, or nil when absent.
func (m *Message) Meta() json.RawMessage {
	params := m.Params()
	if params == nil {
		return nil
	}
	var probe struct {
		Meta json.RawMessage `json:"_meta"`
	}
	if err := json.Unmarshal(params, &probe); err != nil {
		return nil
	}
	return probe.Meta
}

// RawID extracts the message id directly from the raw bytes, preserving the
// sender's original form (string, number, or null). Returns nil when the
// message has no id.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(m.Raw, &probe); err != nil {
		return nil
	}
	return probe.ID
}

// IDString returns the canonical string form of the message id, used when
// deriving deterministic task ids. Returns "" when the message has no id.
func (m *Message) IDString() string {
	return IDString(m.RawID())
}

// IDString canonicalizes a raw JSON-RPC id to a string: string ids keep
// their value, numeric ids format without a trailing fraction. Both sides of
// the response rendezvous must use this exact form.
func IDString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}

// CancelledParams is the payload of a notifications/cancelled notification.
type CancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

// ProgressParams is the payload of a notifications/progress notification.
type ProgressParams struct {
	ProgressToken json.RawMessage `json:"progressToken"`
	Progress      float64         `json:"progress"`
	Total         *float64        `json:"total,omitempty"`
	Message       string          `json:"message,omitempty"`
}
