package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
)

var (
	// ErrPromptNotFound is returned by StaticPrompts.Get for unknown prompt names.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrInvalidPromptArguments is returned when a required argument is missing.
	ErrInvalidPromptArguments = errors.New("invalid prompt arguments")
)

// PromptHandler handles a prompt get request to produce messages.
type PromptHandler func(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with a handler that can materialize it.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// StaticPrompts owns a threadsafe set of prompt descriptors and handlers,
// listed in registration order.
type StaticPrompts struct {
	mu       sync.RWMutex
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler

	pageSize int
}

// NewStaticPrompts constructs a new StaticPrompts container with the given definitions.
func NewStaticPrompts(defs ...StaticPrompt) *StaticPrompts {
	sp := &StaticPrompts{pageSize: 50, handlers: make(map[string]PromptHandler, len(defs))}
	for _, d := range defs {
		sp.Add(d)
	}
	return sp
}

// Add registers a prompt unless one with the same name already exists.
// Returns true if added.
func (sp *StaticPrompts) Add(def StaticPrompt) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	name := def.Descriptor.Name
	if name == "" || def.Handler == nil {
		return false
	}
	if _, ok := sp.handlers[name]; ok {
		return false
	}
	sp.prompts = append(sp.prompts, def.Descriptor)
	sp.handlers[name] = def.Handler
	return true
}

// Snapshot returns a copy of the current prompt descriptors.
func (sp *StaticPrompts) Snapshot() []mcp.Prompt {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	out := make([]mcp.Prompt, len(sp.prompts))
	copy(out, sp.prompts)
	return out
}

// List returns the page of prompts starting at cursor and the next cursor.
func (sp *StaticPrompts) List(cursor string) ([]mcp.Prompt, string) {
	return paginate(sp.Snapshot(), cursor, sp.pageSize)
}

// Get materializes the named prompt. Arguments the descriptor marks as
// required must be present and non-empty.
func (sp *StaticPrompts) Get(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrPromptNotFound)
	}
	sp.mu.RLock()
	h := sp.handlers[req.Name]
	var desc mcp.Prompt
	for _, p := range sp.prompts {
		if p.Name == req.Name {
			desc = p
			break
		}
	}
	sp.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, req.Name)
	}
	for _, a := range desc.Arguments {
		if a.Required && req.Arguments[a.Name] == "" {
			return nil, fmt.Errorf("%w: missing required argument %q", ErrInvalidPromptArguments, a.Name)
		}
	}
	return h(ctx, req)
}

// UserPrompt is a helper for prompts that render a single user text message.
func UserPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.TextContent(text)},
		},
	}
}
