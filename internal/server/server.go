// Package server assembles an OdinMCP server: the registry-backed core
// protocol handlers, the capability set advertised at initialize, and the
// handler tables the worker runtime executes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/theNullP0inter/odinmcp/internal/registry"
	"github.com/theNullP0inter/odinmcp/internal/worker"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// OdinMCP is the top-level server object. Register tools, prompts, and
// resources on it at startup; the web tier serves its initialize result and
// the worker tier executes its handler tables.
type OdinMCP struct {
	name         string
	version      string
	instructions string

	registry *registry.Registry
	handlers *worker.Handlers
	lifespan worker.Lifespan
	logger   *slog.Logger
}

// Option configures an OdinMCP server.
type Option func(*OdinMCP)

// WithVersion sets the version reported in serverInfo.
func WithVersion(version string) Option {
	return func(o *OdinMCP) { o.version = version }
}

// WithInstructions sets the instructions returned at initialize.
func WithInstructions(instructions string) Option {
	return func(o *OdinMCP) { o.instructions = instructions }
}

// WithLifespan sets the lifespan scope opened around request handlers.
func WithLifespan(lifespan worker.Lifespan) Option {
	return func(o *OdinMCP) { o.lifespan = lifespan }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *OdinMCP) { o.logger = logger }
}

// New creates a server and registers the core protocol handlers.
func New(name string, opts ...Option) *OdinMCP {
	o := &OdinMCP{
		name:     name,
		version:  "0.1.0",
		registry: registry.New(),
		handlers: worker.NewHandlers(),
		lifespan: worker.NoopLifespan,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.setupHandlers()
	return o
}

// Name returns the server name.
func (o *OdinMCP) Name() string { return o.name }

// Registry exposes the tool/prompt/resource tables for registration.
func (o *OdinMCP) Registry() *registry.Registry { return o.registry }

// Handlers exposes the dispatch tables the worker runtime consumes.
func (o *OdinMCP) Handlers() *worker.Handlers { return o.handlers }

// Lifespan returns the configured lifespan scope.
func (o *OdinMCP) Lifespan() worker.Lifespan { return o.lifespan }

// HandleRequest registers a custom request handler.
func (o *OdinMCP) HandleRequest(method string, fn worker.RequestHandler) {
	o.handlers.HandleRequest(method, fn)
}

// HandleNotification registers a custom notification handler.
func (o *OdinMCP) HandleNotification(method string, fn worker.NotificationHandler) {
	o.handlers.HandleNotification(method, fn)
}

// Capabilities returns the static capability set derived from the
// registered core handlers.
func (o *OdinMCP) Capabilities() mcp.ServerCapabilities {
	return mcp.ServerCapabilities{
		Tools:     &mcp.ToolsCapability{},
		Prompts:   &mcp.PromptsCapability{},
		Resources: &mcp.ResourcesCapability{},
	}
}

// InitOptions returns the server identity worker sessions carry.
func (o *OdinMCP) InitOptions() mcp.InitializationOptions {
	return mcp.InitializationOptions{
		ServerInfo:   mcp.Implementation{Name: o.name, Version: o.version},
		Capabilities: o.Capabilities(),
		Instructions: o.instructions,
	}
}

// InitializeResult synthesizes the response payload for an initialize
// request.
func (o *OdinMCP) InitializeResult() mcp.InitializeResult {
	return mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    o.Capabilities(),
		ServerInfo:      mcp.Implementation{Name: o.name, Version: o.version},
		Instructions:    o.instructions,
	}
}

// setupHandlers registers the core MCP protocol handlers over the registry.
func (o *OdinMCP) setupHandlers() {
	o.handlers.HandleRequest("tools/list", o.listTools)
	o.handlers.HandleRequest("tools/call", o.callTool)
	o.handlers.HandleRequest("resources/list", o.listResources)
	o.handlers.HandleRequest("resources/templates/list", o.listResourceTemplates)
	o.handlers.HandleRequest("resources/read", o.readResource)
	o.handlers.HandleRequest("prompts/list", o.listPrompts)
	o.handlers.HandleRequest("prompts/get", o.getPrompt)
	o.handlers.HandleRequest(mcp.MethodPing, o.ping)
}

func (o *OdinMCP) listTools(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"tools": o.registry.ListTools()}, nil
}

func (o *OdinMCP) callTool(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, mcp.NewError(mcp.InvalidParams, "invalid tools/call params")
	}
	if args.Name == "" {
		return nil, mcp.NewError(mcp.InvalidParams, "tool name is required")
	}
	parts, err := o.registry.CallTool(ctx, args.Name, args.Arguments)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": parts}, nil
}

func (o *OdinMCP) listResources(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"resources": o.registry.ListResources()}, nil
}

func (o *OdinMCP) listResourceTemplates(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"resourceTemplates": o.registry.ListResourceTemplates()}, nil
}

func (o *OdinMCP) readResource(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &args); err != nil || args.URI == "" {
		return nil, mcp.NewError(mcp.InvalidParams, "resource uri is required")
	}
	contents, err := o.registry.ReadResource(ctx, args.URI)
	if err != nil {
		return nil, fmt.Errorf("reading resource: %w", err)
	}
	return map[string]any{"contents": contents}, nil
}

func (o *OdinMCP) listPrompts(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"prompts": o.registry.ListPrompts()}, nil
}

func (o *OdinMCP) getPrompt(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &args); err != nil || args.Name == "" {
		return nil, mcp.NewError(mcp.InvalidParams, "prompt name is required")
	}
	description, messages, err := o.registry.GetPrompt(ctx, args.Name, args.Arguments)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"messages": messages}
	if description != "" {
		result["description"] = description
	}
	return result, nil
}

func (o *OdinMCP) ping(context.Context, json.RawMessage) (any, error) {
	return map[string]any{}, nil
}
