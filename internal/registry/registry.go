// Package registry holds the tool, prompt, and resource tables the worker
// runtime serves. Tables are populated at startup and immutable afterwards;
// user-supplied callables do the actual work.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when a tool, prompt, or resource is unknown.
var ErrNotFound = errors.New("not registered")

// ToolHandler executes one tool call. The returned value is flattened into
// content parts (see ConvertToContent).
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool describes one registered tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`

	handler ToolHandler
}

// ResourceHandler produces the contents of a fixed resource. It may return
// a string, []byte, or any JSON-marshalable value.
type ResourceHandler func(ctx context.Context) (any, error)

// TemplateHandler produces the contents of a templated resource with the
// URI parameters extracted from the request.
type TemplateHandler func(ctx context.Context, params map[string]string) (any, error)

// Resource describes one registered fixed resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	handler ResourceHandler
}

// ResourceTemplate describes one registered templated resource.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	params  []string
	matcher *templateMatcher
	handler TemplateHandler
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is one rendered prompt message.
type PromptMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// PromptHandler renders a prompt with the supplied arguments.
type PromptHandler func(ctx context.Context, args map[string]string) ([]PromptMessage, error)

// Prompt describes one registered prompt.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`

	handler PromptHandler
}

// Registry is the set of tables served by the worker runtime.
type Registry struct {
	tools     map[string]*Tool
	resources map[string]*Resource
	templates []*ResourceTemplate
	prompts   map[string]*Prompt
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:     make(map[string]*Tool),
		resources: make(map[string]*Resource),
		prompts:   make(map[string]*Prompt),
	}
}

// AddTool registers a tool. Registering the same name twice fails.
func (r *Registry) AddTool(tool Tool, handler ToolHandler) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	if tool.InputSchema == nil {
		tool.InputSchema = json.RawMessage(`{"type":"object"}`)
	}
	tool.handler = handler
	r.tools[tool.Name] = &tool
	return nil
}

// ListTools returns all tools sorted by name.
func (r *Registry) ListTools() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, *tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool invokes a tool and flattens its return value into content parts.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) ([]any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, ErrNotFound)
	}
	value, err := tool.handler(ctx, args)
	if err != nil {
		return nil, err
	}
	return ConvertToContent(value)
}

// HasTools reports whether any tool is registered.
func (r *Registry) HasTools() bool { return len(r.tools) > 0 }

// AddResource registers a fixed resource addressed by its exact URI.
func (r *Registry) AddResource(resource Resource, handler ResourceHandler) error {
	if resource.URI == "" {
		return errors.New("resource uri is required")
	}
	if handler == nil {
		return fmt.Errorf("resource %s: handler is required", resource.URI)
	}
	if _, exists := r.resources[resource.URI]; exists {
		return fmt.Errorf("resource %s already registered", resource.URI)
	}
	resource.handler = handler
	r.resources[resource.URI] = &resource
	return nil
}

// AddResourceTemplate registers a templated resource. params must name
// exactly the placeholders in the template, in any order; a mismatch fails
// registration.
func (r *Registry) AddResourceTemplate(template ResourceTemplate, params []string, handler TemplateHandler) error {
	if handler == nil {
		return fmt.Errorf("resource template %s: handler is required", template.URITemplate)
	}
	matcher, err := newTemplateMatcher(template.URITemplate)
	if err != nil {
		return err
	}
	if err := matcher.checkParams(params); err != nil {
		return fmt.Errorf("resource template %s: %w", template.URITemplate, err)
	}
	template.params = params
	template.matcher = matcher
	template.handler = handler
	r.templates = append(r.templates, &template)
	return nil
}

// ListResources returns all fixed resources sorted by URI.
func (r *Registry) ListResources() []Resource {
	out := make([]Resource, 0, len(r.resources))
	for _, resource := range r.resources {
		out = append(out, *resource)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// ListResourceTemplates returns all templates in registration order.
func (r *Registry) ListResourceTemplates() []ResourceTemplate {
	out := make([]ResourceTemplate, 0, len(r.templates))
	for _, template := range r.templates {
		out = append(out, *template)
	}
	return out
}

// ResourceContents is the result of reading one resource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResource resolves a URI against fixed resources first, then
// templates, and reads the contents.
func (r *Registry) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	if resource, ok := r.resources[uri]; ok {
		value, err := resource.handler(ctx)
		if err != nil {
			return nil, err
		}
		return contentsFor(uri, resource.MimeType, value)
	}
	for _, template := range r.templates {
		params, ok := template.matcher.match(uri)
		if !ok {
			continue
		}
		value, err := template.handler(ctx, params)
		if err != nil {
			return nil, err
		}
		return contentsFor(uri, template.MimeType, value)
	}
	return nil, fmt.Errorf("resource %s: %w", uri, ErrNotFound)
}

// HasResources reports whether any resource or template is registered.
func (r *Registry) HasResources() bool {
	return len(r.resources) > 0 || len(r.templates) > 0
}

// AddPrompt registers a prompt. Registering the same name twice fails.
func (r *Registry) AddPrompt(prompt Prompt, handler PromptHandler) error {
	if prompt.Name == "" {
		return errors.New("prompt name is required")
	}
	if handler == nil {
		return fmt.Errorf("prompt %s: handler is required", prompt.Name)
	}
	if _, exists := r.prompts[prompt.Name]; exists {
		return fmt.Errorf("prompt %s already registered", prompt.Name)
	}
	prompt.handler = handler
	r.prompts[prompt.Name] = &prompt
	return nil
}

// ListPrompts returns all prompts sorted by name.
func (r *Registry) ListPrompts() []Prompt {
	out := make([]Prompt, 0, len(r.prompts))
	for _, prompt := range r.prompts {
		out = append(out, *prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetPrompt renders a prompt by name.
func (r *Registry) GetPrompt(ctx context.Context, name string, args map[string]string) (string, []PromptMessage, error) {
	prompt, ok := r.prompts[name]
	if !ok {
		return "", nil, fmt.Errorf("prompt %s: %w", name, ErrNotFound)
	}
	for _, arg := range prompt.Arguments {
		if arg.Required {
			if _, ok := args[arg.Name]; !ok {
				return "", nil, fmt.Errorf("prompt %s: missing required argument %s", name, arg.Name)
			}
		}
	}
	messages, err := prompt.handler(ctx, args)
	if err != nil {
		return "", nil, err
	}
	return prompt.Description, messages, nil
}

// HasPrompts reports whether any prompt is registered.
func (r *Registry) HasPrompts() bool { return len(r.prompts) > 0 }
