package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// EncodeMessage serializes a JSON-RPC message to its wire format.
// This delegates to the MCP SDK's jsonrpc package.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes JSON-RPC wire format data.
// It returns either a *jsonrpc.Request or *jsonrpc.Response.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// IDFromRaw converts a raw JSON id value into the SDK's ID type.
func IDFromRaw(raw json.RawMessage) (jsonrpc.ID, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return jsonrpc.ID{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return jsonrpc.MakeID(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return jsonrpc.MakeID(f)
	}
	return jsonrpc.ID{}, fmt.Errorf("unsupported id value %q", raw)
}

// NewRequest builds an outbound JSON-RPC request with a string id.
// Params may be nil or any JSON-marshalable value.
func NewRequest(id string, method string, params any) (*jsonrpc.Request, error) {
	reqID, err := jsonrpc.MakeID(id)
	if err != nil {
		return nil, fmt.Errorf("making request id: %w", err)
	}
	req := &jsonrpc.Request{ID: reqID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewNotification builds an outbound JSON-RPC notification (a request with
// no id).
func NewNotification(method string, params any) (*jsonrpc.Request, error) {
	req := &jsonrpc.Request{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}
