package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
	"github.com/invopop/jsonschema"
)

// ErrToolNotFound is returned by ToolsContainer.Call for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest is the container for tool call input and request metadata.
// It is generic over the typed argument struct A.
type ToolRequest[A any] struct {
	name string
	args A
}

func (r *ToolRequest[A]) Name() string { return r.name }
func (r *ToolRequest[A]) Args() A      { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a writer-based tool with typed input A. Invalid arguments
// never reach fn; they produce an error result instead.
func NewTool[A any](name string, fn func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectToMCPInputSchema[A](cfg.allowAdditionalProperties)
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: input,
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		a, err := decodeArguments[A](req.Arguments, input.Required, cfg.allowAdditionalProperties)
		if err != nil {
			return Errorf("invalid arguments: %v", err), nil
		}
		w := newToolResponseWriter(ctx)
		r := &ToolRequest[A]{name: req.Name, args: a}
		if err := fn(ctx, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

func decodeArguments[A any](raw json.RawMessage, required []string, lenient bool) (A, error) {
	var a A
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if len(required) > 0 {
		var present map[string]json.RawMessage
		if err := json.Unmarshal(raw, &present); err != nil {
			return a, err
		}
		for _, k := range required {
			if v, ok := present[k]; !ok || string(v) == "null" {
				return a, fmt.Errorf("missing required field %q", k)
			}
		}
	}
	if lenient {
		return a, json.Unmarshal(raw, &a)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return a, dec.Decode(&a)
}

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema, and
// converts it to the simplified mcp.ToolInputSchema.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
		MinLength:   s.MinLength,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolsContainer owns a threadsafe set of tool descriptors and handlers,
// listed in registration order.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool             // descriptors for listing
	handlers map[string]ToolHandler // name -> handler

	pageSize int // pagination size for ListTools (default 50)
}

// NewToolsContainer constructs a new ToolsContainer with the given tool definitions.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	st := &ToolsContainer{pageSize: 50, handlers: make(map[string]ToolHandler, len(defs))}
	for _, d := range defs {
		st.Add(d)
	}
	return st
}

// SetPageSize sets the pagination size used by ListTools. A non-positive
// value is ignored.
func (st *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	st.mu.Lock()
	st.pageSize = n
	st.mu.Unlock()
}

// Snapshot returns a copy of the current tool descriptors.
func (st *ToolsContainer) Snapshot() []mcp.Tool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]mcp.Tool, len(st.tools))
	copy(out, st.tools)
	return out
}

// Add registers a new tool if it doesn't duplicate an existing name.
// Returns true if added.
func (st *ToolsContainer) Add(def StaticTool) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	name := def.Descriptor.Name
	if name == "" || def.Handler == nil {
		return false
	}
	if _, exists := st.handlers[name]; exists {
		return false
	}
	st.tools = append(st.tools, def.Descriptor)
	st.handlers[name] = def.Handler
	return true
}

// ListTools returns the page of tools starting at cursor and the cursor of
// the next page, which is empty on the last page.
func (st *ToolsContainer) ListTools(cursor string) ([]mcp.Tool, string) {
	st.mu.RLock()
	all := make([]mcp.Tool, len(st.tools))
	copy(all, st.tools)
	pageSize := st.pageSize
	st.mu.RUnlock()
	return paginate(all, cursor, pageSize)
}

// Call dispatches a request to the named tool if present.
func (st *ToolsContainer) Call(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrToolNotFound)
	}
	st.mu.RLock()
	h := st.handlers[req.Name]
	st.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return h(ctx, req)
}

func paginate[T any](all []T, cursor string, pageSize int) ([]T, string) {
	start := 0
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil && n >= 0 && n <= len(all) {
			start = n
		}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		return items, strconv.Itoa(end)
	}
	return items, ""
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, a...)
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(msg)}, IsError: true}
}
