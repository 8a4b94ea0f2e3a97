package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	ResourcesListMethod          Method = "resources/list"
	ResourcesTemplatesListMethod Method = "resources/templates/list"

	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	PingMethod                  Method = "ping"
	CancelledNotificationMethod Method = "notifications/cancelled"
)

// PaginatedRequest carries a cursor for paginated list requests.
type PaginatedRequest struct {
	Cursor string `json:"cursor,omitzero"`
}

// PaginatedResult carries a cursor for continuing pagination.
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitzero"`
}

// BaseMetadata carries optional metadata for responses.
type BaseMetadata struct {
	Meta map[string]any `json:"_meta,omitempty"`
}

// InitializeRequest starts the MCP initialization handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns negotiated capabilities and server info.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
	BaseMetadata
}

// ListToolsRequest requests the set of available tools.
type ListToolsRequest struct {
	PaginatedRequest
}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	PaginatedResult
	BaseMetadata
}

// CallToolRequestReceived is the server-received representation for a tool call.
type CallToolRequestReceived struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult represents a tool invocation result.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitzero"`
	BaseMetadata
}

// ListResourcesResult returns a page of resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	PaginatedResult
	BaseMetadata
}

// ListResourceTemplatesResult returns resource templates.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	PaginatedResult
	BaseMetadata
}

// ListPromptsRequest requests available prompts.
type ListPromptsRequest struct {
	PaginatedRequest
}

// ListPromptsResult returns available prompts.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
	PaginatedResult
	BaseMetadata
}

// GetPromptRequestReceived is the server-received representation for prompt retrieval.
type GetPromptRequestReceived struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult returns a prompt definition and messages.
type GetPromptResult struct {
	Description string          `json:"description,omitzero"`
	Messages    []PromptMessage `json:"messages"`
	BaseMetadata
}

// EmptyResult is returned for operations that do not return data.
type EmptyResult struct {
	BaseMetadata
}
