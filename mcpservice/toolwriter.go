package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
)

// ToolResponseWriter allows a tool handler to incrementally compose a
// CallToolResult.
//
// It is safe for concurrent use within a single request. Writes after Result
// return ErrFinalized.
type ToolResponseWriter interface {
	AppendText(text string) error
	// AppendJSON appends v as a text block holding JSON indented by two spaces.
	AppendJSON(v any) error
	AppendBlocks(blocks ...mcp.ContentBlock) error
	SetError(isError bool)
	SetMeta(key string, v any)
	// Result finalizes and returns the accumulated result. It is idempotent.
	Result() *mcp.CallToolResult
}

// ErrFinalized is returned when attempting to write after Result() was called.
var ErrFinalized = errors.New("result already finalized")

type toolResponseWriter struct {
	ctx       context.Context
	mu        sync.Mutex
	finalized bool

	blocks  []mcp.ContentBlock
	isError bool
	meta    map[string]any
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

func newToolResponseWriter(ctx context.Context) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	return w.AppendBlocks(mcp.TextContent(text))
}

func (w *toolResponseWriter) AppendJSON(v any) error {
	s, err := IndentJSON(v)
	if err != nil {
		return err
	}
	return w.AppendBlocks(mcp.TextContent(s))
}

func (w *toolResponseWriter) AppendBlocks(blocks ...mcp.ContentBlock) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.blocks = append(w.blocks, blocks...)
	return nil
}

func (w *toolResponseWriter) SetError(isError bool) {
	w.mu.Lock()
	w.isError = isError
	w.mu.Unlock()
}

func (w *toolResponseWriter) SetMeta(key string, v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.meta == nil {
		w.meta = make(map[string]any)
	}
	w.meta[key] = v
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	blocks := make([]mcp.ContentBlock, len(w.blocks))
	copy(blocks, w.blocks)
	res := &mcp.CallToolResult{Content: blocks, IsError: w.isError}
	if len(w.meta) > 0 {
		res.Meta = make(map[string]any, len(w.meta))
		for k, v := range w.meta {
			res.Meta[k] = v
		}
	}
	return res
}

// IndentJSON renders v as JSON indented by two spaces.
func IndentJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
