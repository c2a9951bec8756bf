// Package mcp defines the gateway through which the assistant reaches remote
// tools over the Model Context Protocol.
//
// Two transports implement [Gateway]: the jsonrpc sub-package posts plain
// JSON-RPC requests to an HTTP endpoint, and the mcphost sub-package uses the
// official MCP Go SDK over stdio or streamable HTTP. Callers never see
// transport errors from CallTool; every failure is folded into a
// [ToolResult] whose Failure field explains what went wrong.
//
// Lifecycle:
//
//  1. Construct a gateway with [CredentialProvider] and timeout options.
//  2. Call [Gateway.ListTools] once to build the tool catalogue.
//  3. Call [Gateway.CallTool] per routed message.
//  4. Call [Gateway.Close] on shutdown.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"
	"errors"
)

// Gateway is a connection to one remote tool server.
type Gateway interface {
	// ListTools returns the server's tool catalogue. Failures are logged and
	// yield nil so that callers can degrade to retrieval and conversation.
	ListTools(ctx context.Context) []ToolDescriptor

	// CallTool attaches credentials, invokes the named tool and maps the
	// outcome to a ToolResult. It never returns an error.
	CallTool(ctx context.Context, name string, args map[string]any) ToolResult

	// ListResources returns the resources the server exposes. Failures are
	// logged and yield nil.
	ListResources(ctx context.Context) []Resource

	// ReadResource returns the contents of the resource at uri.
	ReadResource(ctx context.Context, uri string) ([]ContentItem, error)

	// ServerInfo asks the server to describe itself.
	ServerInfo(ctx context.Context) (ServerInfo, error)

	// Close releases the connection. The Gateway must not be used afterwards.
	Close() error
}

// ErrNotConfigured is reported by [Unavailable].
var ErrNotConfigured = errors.New("mcp: no tool server configured")

// Unavailable is the Gateway used when no tool server is configured. It
// offers no tools and fails every call with a transport failure.
type Unavailable struct{}

var _ Gateway = Unavailable{}

func (Unavailable) ListTools(context.Context) []ToolDescriptor { return nil }

func (Unavailable) CallTool(context.Context, string, map[string]any) ToolResult {
	return TransportFailure(ErrNotConfigured)
}

func (Unavailable) ListResources(context.Context) []Resource { return nil }

func (Unavailable) ReadResource(context.Context, string) ([]ContentItem, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) ServerInfo(context.Context) (ServerInfo, error) {
	return ServerInfo{Status: "unconfigured"}, ErrNotConfigured
}

func (Unavailable) Close() error { return nil }
