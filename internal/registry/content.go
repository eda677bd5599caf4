package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// ConvertToContent flattens a tool return value into a sequence of content
// parts. Strings become text parts, content parts pass through, slices
// flatten element-wise, and anything else is JSON-serialized into a text
// part.
func ConvertToContent(value any) ([]any, error) {
	if value == nil {
		return []any{}, nil
	}

	switch v := value.(type) {
	case string:
		return []any{mcp.NewTextContent(v)}, nil
	case mcp.TextContent:
		return []any{v}, nil
	case mcp.ImageContent:
		return []any{v}, nil
	case mcp.EmbeddedResource:
		return []any{v}, nil
	case []byte:
		// Raw bytes become a base64 text part; tools returning images
		// should construct ImageContent themselves.
		return []any{mcp.NewTextContent(base64.StdEncoding.EncodeToString(v))}, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts, err := ConvertToContent(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, parts...)
		}
		return out, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("serializing tool result: %w", err)
	}
	return []any{mcp.NewTextContent(string(raw))}, nil
}

// contentsFor wraps a resource handler's return value as resource contents:
// strings are text, bytes are base64 blobs, and anything else serializes to
// JSON text.
func contentsFor(uri, mimeType string, value any) ([]ResourceContents, error) {
	contents := ResourceContents{URI: uri, MimeType: mimeType}
	switch v := value.(type) {
	case string:
		contents.Text = v
	case []byte:
		contents.Blob = base64.StdEncoding.EncodeToString(v)
		if contents.MimeType == "" {
			contents.MimeType = "application/octet-stream"
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serializing resource contents: %w", err)
		}
		contents.Text = string(raw)
		if contents.MimeType == "" {
			contents.MimeType = "application/json"
		}
	}
	if contents.MimeType == "" {
		contents.MimeType = "text/plain"
	}
	return []ResourceContents{contents}, nil
}
