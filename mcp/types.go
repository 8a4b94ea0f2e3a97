package mcp

// Role indicates the role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Protocol versions accepted during initialization, newest first.
const (
	LatestProtocolVersion   = "2025-06-18"
	ProtocolVersion20250326 = "2025-03-26"
	ProtocolVersion20241105 = "2024-11-05"
)

// SupportedProtocolVersions lists every version the server negotiates.
var SupportedProtocolVersions = []string{
	LatestProtocolVersion,
	ProtocolVersion20250326,
	ProtocolVersion20241105,
}

// ClientCapabilities advertises client features. The server only records them.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
	Sampling    *struct{} `json:"sampling,omitempty"`
	Elicitation *struct{} `json:"elicitation,omitempty"`
}

// ListChangedCapability is the shape shared by the tools and prompts capabilities.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ResourcesCapability advertises resource support.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged"`
	Subscribe   bool `json:"subscribe"`
}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Logging   *struct{}              `json:"logging,omitempty"`
	Prompts   *ListChangedCapability `json:"prompts,omitempty"`
	Resources *ResourcesCapability   `json:"resources,omitempty"`
	Tools     *ListChangedCapability `json:"tools,omitempty"`
}

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ContentBlock is a typed content part of a message. Only text content is
// produced by this server.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitzero"`
}

// TextContent builds a text ContentBlock.
func TextContent(s string) ContentBlock {
	return ContentBlock{Type: "text", Text: s}
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties,omitzero"`
}

// SchemaProperty is a simplified schema node used in tool schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
	Default     any                       `json:"default,omitempty"`
	MinLength   *uint64                   `json:"minLength,omitempty"`
}

// Resource represents an addressable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
}

// ResourceTemplate describes a template for resource URIs.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
}

// Prompt describes a named prompt the server can provide.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitzero"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a single prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	Required    bool   `json:"required,omitzero"`
}

// PromptMessage is a message used in a prompt.
type PromptMessage struct {
	Role    Role         `json:"role"`
	Content ContentBlock `json:"content"`
}
