package mcp

import "encoding/json"

// Implementation identifies a server or client implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability advertises prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// LoggingCapability advertises logging support.
type LoggingCapability struct{}

// ServerCapabilities is the merged static capability set the server
// advertises in its initialize result.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Logging   *LoggingCapability   `json:"logging,omitempty"`
}

// InitializeResult is the payload returned for an initialize request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// InitializationOptions is the server-side identity handed to worker
// sessions: what this server calls itself and what it advertises.
type InitializationOptions struct {
	ServerInfo   Implementation
	Capabilities ServerCapabilities
	Instructions string
}

// Root is a filesystem or URI root exposed by the client.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the client's response to a roots/list request.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

// TextContent is a text content part in a tool or prompt result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ImageContent is a base64 image content part.
type ImageContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// EmbeddedResource wraps resource contents inside a content list.
type EmbeddedResource struct {
	Type     string          `json:"type"`
	Resource json.RawMessage `json:"resource"`
}

// NewTextContent builds a text content part.
func NewTextContent(text string) TextContent {
	return TextContent{Type: "text", Text: text}
}
