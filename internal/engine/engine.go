package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/internal/jsonrpc"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/logctx"
	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
	"github.com/ggoodman/pipedrive-mcp-server-go/mcpservice"
)

// ErrInvalidMessage is returned by HandleMessage for a nil message.
var ErrInvalidMessage = errors.New("invalid message")

// Engine routes MCP JSON-RPC messages to the tool and prompt containers. It
// holds no per-session state beyond in-flight cancellation handles and is
// shared by every transport.
type Engine struct {
	tools        *mcpservice.ToolsContainer
	prompts      *mcpservice.StaticPrompts
	info         mcp.ImplementationInfo
	instructions string
	log          *slog.Logger

	// tool call tracking
	toolCtxMu      sync.Mutex
	toolCtxCancels map[string]context.CancelCauseFunc // scope/reqID -> cancel func
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(s string) Option {
	return func(e *Engine) { e.instructions = s }
}

// New creates an Engine serving the given tools and prompts. Nil containers
// are treated as empty.
func New(tools *mcpservice.ToolsContainer, prompts *mcpservice.StaticPrompts, info mcp.ImplementationInfo, opts ...Option) *Engine {
	if tools == nil {
		tools = mcpservice.NewToolsContainer()
	}
	if prompts == nil {
		prompts = mcpservice.NewStaticPrompts()
	}
	e := &Engine{
		tools:          tools,
		prompts:        prompts,
		info:           info,
		log:            slog.Default(),
		toolCtxCancels: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// HandleMessage processes one inbound JSON-RPC message. It returns the
// response to deliver, or nil for notifications and client responses. Protocol
// level failures are encoded as JSON-RPC errors; a Go error means no response
// could be produced at all.
func (e *Engine) HandleMessage(ctx context.Context, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error) {
	if msg == nil {
		return nil, ErrInvalidMessage
	}
	req := msg.AsRequest()
	if req == nil {
		e.log.DebugContext(ctx, "engine.handle_response.ignored")
		return nil, nil
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: msg.Type()})

	if req.IsNotification() {
		e.handleNotification(ctx, req)
		return nil, nil
	}
	return e.HandleRequest(ctx, req)
}

// HandleRequest dispatches a request by method.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, req)
	case mcp.PingMethod:
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, req)
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, req)
	case mcp.PromptsListMethod:
		return e.handlePromptsList(ctx, req)
	case mcp.PromptsGetMethod:
		return e.handlePromptsGet(ctx, req)
	case mcp.ResourcesListMethod:
		return jsonrpc.NewResultResponse(req.ID, &mcp.ListResourcesResult{Resources: []mcp.Resource{}})
	case mcp.ResourcesTemplatesListMethod:
		return jsonrpc.NewResultResponse(req.ID, &mcp.ListResourceTemplatesResult{ResourceTemplates: []mcp.ResourceTemplate{}})
	}

	e.log.InfoContext(ctx, "engine.handle_request.unknown_method")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil), nil
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	version := mcp.LatestProtocolVersion
	if slices.Contains(mcp.SupportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ListChangedCapability{},
			Prompts:   &mcp.ListChangedCapability{},
			Resources: &mcp.ResourcesCapability{},
		},
		ServerInfo:   e.info,
		Instructions: e.instructions,
	}

	e.log.InfoContext(ctx, "engine.session.initialize",
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("protocol_version", version),
	)
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	items, next := e.tools.ListTools(params.Cursor)
	res := &mcp.ListToolsResult{Tools: items}
	res.NextCursor = next

	e.log.DebugContext(ctx, "engine.handle_request.ok", slog.Int("tool_count", len(items)))
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	toolCtx, toolCancel := context.WithCancelCause(ctx)
	defer toolCancel(context.Canceled)

	key := cancelKey(ctx, req.ID.String())
	tracked := e.trackCancel(key, toolCancel)
	if tracked {
		defer e.untrackCancel(key)
	}

	res, err := e.tools.Call(toolCtx, &params)
	dur := slog.Int64("dur_ms", time.Since(start).Milliseconds())
	if err != nil {
		if errors.Is(err, mcpservice.ErrToolNotFound) {
			e.log.InfoContext(ctx, "engine.tool_call.unknown", dur)
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name), nil), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.log.InfoContext(ctx, "engine.tool_call.cancelled", dur)
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "cancelled", nil), nil
		}
		e.log.ErrorContext(ctx, "engine.tool_call.fail", slog.String("err", err.Error()), dur)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	e.log.InfoContext(ctx, "engine.tool_call.ok", slog.Bool("is_error", res.IsError), dur)
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handlePromptsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListPromptsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	items, next := e.prompts.List(params.Cursor)
	res := &mcp.ListPromptsResult{Prompts: items}
	res.NextCursor = next
	e.log.DebugContext(ctx, "engine.handle_request.ok", slog.Int("prompt_count", len(items)))
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handlePromptsGet(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.GetPromptRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing name"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	res, err := e.prompts.Get(ctx, &params)
	switch {
	case errors.Is(err, mcpservice.ErrPromptNotFound):
		e.log.InfoContext(ctx, "engine.prompt_get.unknown", slog.String("prompt", params.Name))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown prompt: %s", params.Name), nil), nil
	case errors.Is(err, mcpservice.ErrInvalidPromptArguments):
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil), nil
	case err != nil:
		e.log.ErrorContext(ctx, "engine.prompt_get.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

type cancelledParams struct {
	RequestID *jsonrpc.RequestID `json:"requestId"`
	Reason    string             `json:"reason,omitempty"`
}

func (e *Engine) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.InfoContext(ctx, "engine.session.initialized")
	case mcp.CancelledNotificationMethod:
		var params cancelledParams
		if err := json.Unmarshal(note.Params, &params); err != nil || params.RequestID.IsNil() {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid")
			return
		}
		ok := e.cancelInFlightRequest(cancelKey(ctx, params.RequestID.String()), params.Reason)
		e.log.InfoContext(ctx, "engine.handle_notification.cancelled", slog.Bool("found", ok))
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
}

// cancelKey scopes request ids by session so that two sessions may reuse ids.
func cancelKey(ctx context.Context, reqID string) string {
	if sd, ok := logctx.SessionDataFrom(ctx); ok {
		return sd.SessionID + "/" + reqID
	}
	return "/" + reqID
}

func (e *Engine) trackCancel(key string, cancel context.CancelCauseFunc) bool {
	e.toolCtxMu.Lock()
	defer e.toolCtxMu.Unlock()
	if _, exists := e.toolCtxCancels[key]; exists {
		return false
	}
	e.toolCtxCancels[key] = cancel
	return true
}

func (e *Engine) untrackCancel(key string) {
	e.toolCtxMu.Lock()
	delete(e.toolCtxCancels, key)
	e.toolCtxMu.Unlock()
}

func (e *Engine) cancelInFlightRequest(key, reason string) bool {
	e.toolCtxMu.Lock()
	cancel, exists := e.toolCtxCancels[key]
	e.toolCtxMu.Unlock()
	if !exists {
		return false
	}
	if reason == "" {
		reason = "cancelled"
	}
	cancel(errors.New(reason))
	return true
}
