package mcp

import (
	"encoding/json"
	"strings"
	"time"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportJSONRPC posts one JSON-RPC request per operation to a plain
	// HTTP endpoint. Responses may arrive as JSON or as a server-sent event.
	TransportJSONRPC Transport = "jsonrpc"

	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportJSONRPC || t == TransportStdio || t == TransportStreamableHTTP
}

// DefaultTimeout bounds every tool call unless configured otherwise.
const DefaultTimeout = 30 * time.Second

// CodeTransportError is the JSON-RPC code reported when the request never
// produced a protocol response (network failure, non-2xx status, bad body).
const CodeTransportError = -32000

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and metrics.
	Name string

	Transport Transport

	// URL is the endpoint for the jsonrpc and streamable-http transports.
	URL string

	// Command is the executable and its arguments for the stdio transport.
	Command string

	// Env holds extra environment variables for the stdio subprocess.
	Env map[string]string

	// Timeout bounds each call. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// ToolDescriptor is a tool advertised by the remote server.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContentItem is one element of a tool result or resource body.
type ContentItem struct {
	// Type is "text", "image", "resource" or whatever the server reports.
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Failure describes why a tool call did not succeed. Code is nil when the
// server reported an application error without a JSON-RPC code.
type Failure struct {
	Message string
	Code    *int
	Data    json.RawMessage
}

// ToolResult is the outcome of a tool call. Exactly one of the two shapes is
// populated: a successful result carries Content and Raw, a failed one carries
// Failure.
type ToolResult struct {
	Content []ContentItem
	Raw     json.RawMessage
	Failure *Failure
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Failure == nil }

// Text concatenates all text content items.
func (r ToolResult) Text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" || (c.Type == "" && c.Text != "") {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// Succeeded builds a successful ToolResult.
func Succeeded(content []ContentItem, raw json.RawMessage) ToolResult {
	return ToolResult{Content: content, Raw: raw}
}

// Failed builds a failed ToolResult.
func Failed(message string, code *int, data json.RawMessage) ToolResult {
	return ToolResult{Failure: &Failure{Message: message, Code: code, Data: data}}
}

// TransportFailure builds the failed ToolResult used when no protocol response
// was obtained.
func TransportFailure(err error) ToolResult {
	code := CodeTransportError
	return Failed(err.Error(), &code, nil)
}

// Resource is a readable resource advertised by the remote server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ServerInfo is the self-description a server returns for a plain GET.
type ServerInfo struct {
	Status    string `json:"status"`
	Server    string `json:"server,omitempty"`
	Version   string `json:"version,omitempty"`
	Transport string `json:"transport,omitempty"`
}

// Healthy reports whether the server described itself as healthy.
func (i ServerInfo) Healthy() bool { return i.Status == "healthy" }
