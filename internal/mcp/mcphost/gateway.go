// Package mcphost implements [mcp.Gateway] on top of the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// It connects once, over stdio or streamable HTTP, and keeps the session for
// the lifetime of the gateway:
//
//	gw, err := mcphost.Connect(ctx, mcp.ServerConfig{
//	    Name:      "aem",
//	    Transport: mcp.TransportStreamableHTTP,
//	    URL:       "https://tools.example.com/mcp",
//	}, mcphost.WithCredentials(creds))
//	if err != nil { … }
//	defer gw.Close()
//
//	res := gw.CallTool(ctx, "aem-list-sites", map[string]any{"path": "/content"})
package mcphost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// clientVersion is reported to servers during initialisation.
const clientVersion = "1.0.0"

var _ mcp.Gateway = (*Gateway)(nil)

// Gateway is an SDK-backed [mcp.Gateway]. It is safe for concurrent use.
type Gateway struct {
	name      string
	transport string
	session   *mcpsdk.ClientSession
	timeout   time.Duration
	creds     mcp.CredentialProvider
}

type options struct {
	timeout time.Duration
	creds   mcp.CredentialProvider
}

// Option is a functional option for [Connect] and [ConnectTransport].
type Option func(*options)

// WithTimeout bounds each call. Zero keeps [mcp.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCredentials sets the provider consulted before every tool call.
func WithCredentials(p mcp.CredentialProvider) Option {
	return func(o *options) {
		if p != nil {
			o.creds = p
		}
	}
}

// Connect dials the server described by cfg.
//
// For [mcp.TransportStdio], cfg.Command is split on whitespace into the
// executable and its arguments and cfg.Env is appended to the current
// environment. For [mcp.TransportStreamableHTTP], cfg.URL is the endpoint.
func Connect(ctx context.Context, cfg mcp.ServerConfig, opts ...Option) (*Gateway, error) {
	var transport mcpsdk.Transport

	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("mcphost: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcphost: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return nil, fmt.Errorf("mcphost: unsupported transport %q for server %q", cfg.Transport, cfg.Name)
	}

	opts = append([]Option{WithTimeout(cfg.Timeout)}, opts...)
	gw, err := ConnectTransport(ctx, cfg.Name, transport, opts...)
	if err != nil {
		return nil, err
	}
	gw.transport = string(cfg.Transport)
	return gw, nil
}

// ConnectTransport connects over an arbitrary SDK transport. Tests use it with
// [mcpsdk.NewInMemoryTransports].
func ConnectTransport(ctx context.Context, name string, t mcpsdk.Transport, opts ...Option) (*Gateway, error) {
	o := options{timeout: mcp.DefaultTimeout, creds: mcp.NoCredentials{}}
	for _, opt := range opts {
		opt(&o)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "aemassist", Version: clientVersion}, nil)
	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcphost: connect to %q: %w", name, err)
	}
	return &Gateway{
		name:      name,
		transport: "sdk",
		session:   session,
		timeout:   o.timeout,
		creds:     o.creds,
	}, nil
}

// ListTools implements [mcp.Gateway].
func (g *Gateway) ListTools(ctx context.Context) []mcp.ToolDescriptor {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var tools []mcp.ToolDescriptor
	for tool, err := range g.session.Tools(ctx, nil) {
		if err != nil {
			slog.Warn("mcp: error listing tools", "server", g.name, "err", err)
			return nil
		}
		tools = append(tools, mcp.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return tools
}

// CallTool implements [mcp.Gateway].
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) mcp.ToolResult {
	args = g.creds.Attach(name, args)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		var wireErr *sdkjsonrpc.Error
		if errors.As(err, &wireErr) {
			code := int(wireErr.Code)
			return mcp.Failed(wireErr.Message, &code, wireErr.Data)
		}
		return mcp.TransportFailure(err)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		slog.Warn("mcp: error encoding tool result", "server", g.name, "tool", name, "err", err)
		raw = nil
	}
	content := make([]mcp.ContentItem, 0, len(res.Content))
	for _, c := range res.Content {
		content = append(content, contentItem(c))
	}
	out := mcp.Succeeded(content, raw)
	if res.IsError {
		msg := out.Text()
		if msg == "" {
			msg = "tool reported an error"
		}
		return mcp.Failed(msg, nil, raw)
	}
	return out
}

// ListResources implements [mcp.Gateway].
func (g *Gateway) ListResources(ctx context.Context) []mcp.Resource {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.session.ListResources(ctx, nil)
	if err != nil {
		slog.Warn("mcp: error listing resources", "server", g.name, "err", err)
		return nil
	}
	out := make([]mcp.Resource, 0, len(res.Resources))
	for _, r := range res.Resources {
		out = append(out, mcp.Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MIMEType})
	}
	return out
}

// ReadResource implements [mcp.Gateway].
func (g *Gateway) ReadResource(ctx context.Context, uri string) ([]mcp.ContentItem, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("mcphost: read resource %q: %w", uri, err)
	}
	out := make([]mcp.ContentItem, 0, len(res.Contents))
	for _, rc := range res.Contents {
		out = append(out, resourceItem(rc))
	}
	return out, nil
}

// ServerInfo implements [mcp.Gateway]. A session that answers a ping is
// reported healthy.
func (g *Gateway) ServerInfo(ctx context.Context) (mcp.ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.session.Ping(ctx, nil); err != nil {
		return mcp.ServerInfo{Status: "unreachable", Transport: g.transport}, fmt.Errorf("mcphost: ping %q: %w", g.name, err)
	}
	info := mcp.ServerInfo{Status: "healthy", Server: g.name, Transport: g.transport}
	if ir := g.session.InitializeResult(); ir != nil && ir.ServerInfo != nil {
		info.Server = ir.ServerInfo.Name
		info.Version = ir.ServerInfo.Version
	}
	return info, nil
}

// Close implements [mcp.Gateway].
func (g *Gateway) Close() error {
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("mcphost: close %q: %w", g.name, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping helpers
// ─────────────────────────────────────────────────────────────────────────────

func contentItem(c mcpsdk.Content) mcp.ContentItem {
	switch v := c.(type) {
	case *mcpsdk.TextContent:
		return mcp.ContentItem{Type: "text", Text: v.Text}
	case *mcpsdk.ImageContent:
		return mcp.ContentItem{Type: "image", Data: base64.StdEncoding.EncodeToString(v.Data), MimeType: v.MIMEType}
	case *mcpsdk.ResourceLink:
		return mcp.ContentItem{Type: "resource_link", URI: v.URI, Text: v.Name, MimeType: v.MIMEType}
	case *mcpsdk.EmbeddedResource:
		item := mcp.ContentItem{Type: "resource"}
		if v.Resource != nil {
			r := resourceItem(v.Resource)
			item.URI, item.Text, item.Data, item.MimeType = r.URI, r.Text, r.Data, r.MimeType
		}
		return item
	}
	data, _ := json.Marshal(c)
	return mcp.ContentItem{Type: "unknown", Text: string(data)}
}

func resourceItem(rc *mcpsdk.ResourceContents) mcp.ContentItem {
	item := mcp.ContentItem{Type: "text", URI: rc.URI, MimeType: rc.MIMEType, Text: rc.Text}
	if len(rc.Blob) > 0 {
		item.Type = "blob"
		item.Data = base64.StdEncoding.EncodeToString(rc.Blob)
	}
	return item
}

// schemaToMap converts an SDK schema value to a plain map.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits "/bin/foo --bar baz" into ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
