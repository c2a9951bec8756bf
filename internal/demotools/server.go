// Package demotools is a small MCP tool server for local development.
//
// It serves echo and calculator plus two read-only AEM site tools backed by
// an in-memory catalog. The site tools expect the server and token arguments
// that the assistant attaches to every "aem-" tool and answer with a 401
// error when the token is missing, which exercises the assistant's error
// guidance without a real AEM instance.
package demotools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported in the MCP handshake.
const Version = "0.1.0"

// sitesURI names the resource listing the catalog.
const sitesURI = "aem://sites"

// Site is one entry of the demo catalog.
type Site struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Language string   `json:"language"`
	Pages    []string `json:"pages"`
}

// DefaultSites is the catalog served when none is given.
func DefaultSites() []Site {
	return []Site{
		{Path: "/content/wknd", Title: "WKND Adventures", Language: "en", Pages: []string{"home", "adventures", "magazine", "about-us"}},
		{Path: "/content/we-retail", Title: "We.Retail", Language: "en", Pages: []string{"home", "men", "women", "equipment"}},
		{Path: "/content/core-components-examples", Title: "Core Components Examples", Language: "en", Pages: []string{"library"}},
	}
}

// Tools holds the catalog and implements the tool handlers.
type Tools struct {
	sites []Site
}

// New returns handlers over sites. A nil catalog selects [DefaultSites].
func New(sites []Site) *Tools {
	if sites == nil {
		sites = DefaultSites()
	}
	return &Tools{sites: sites}
}

// NewServer builds the MCP server with every tool and the catalog resource
// registered.
func NewServer(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"aemassist-demotools",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo a message back."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Text to echo.")),
	), t.Echo)

	s.AddTool(mcp.NewTool("calculator",
		mcp.WithDescription("Evaluate an arithmetic expression with + - * / % and parentheses."),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression, e.g. '2 + 3 * 4'.")),
	), t.Calculate)

	s.AddTool(mcp.NewTool("aem-list-sites",
		mcp.WithDescription("List the sites below a content path."),
		mcp.WithString("path", mcp.Description("Root content path. Defaults to /content.")),
		mcp.WithString("server", mcp.Description("AEM instance URL.")),
		mcp.WithString("token", mcp.Description("AEM access token.")),
	), t.ListSites)

	s.AddTool(mcp.NewTool("aem-get-site-info",
		mcp.WithDescription("Show details of one site."),
		mcp.WithString("sitePath", mcp.Required(), mcp.Description("Site path, e.g. /content/wknd.")),
		mcp.WithString("server", mcp.Description("AEM instance URL.")),
		mcp.WithString("token", mcp.Description("AEM access token.")),
	), t.SiteInfo)

	s.AddResource(mcp.NewResource(sitesURI, "AEM sites",
		mcp.WithResourceDescription("The demo site catalog as JSON."),
		mcp.WithMIMEType("application/json"),
	), t.ReadSites)

	return s
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Echo returns the message argument.
func (t *Tools) Echo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg := req.GetString("message", "")
	if msg == "" {
		return mcp.NewToolResultError("validation error: 'message' is required"), nil
	}
	return mcp.NewToolResultText(msg), nil
}

// Calculate evaluates the expression argument.
func (t *Tools) Calculate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr := strings.TrimSpace(req.GetString("expression", ""))
	if expr == "" {
		return mcp.NewToolResultError("validation error: 'expression' is required"), nil
	}
	v, err := Evaluate(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot evaluate: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s = %s", expr, formatNumber(v))), nil
}

// ListSites lists catalog sites below the path argument.
func (t *Tools) ListSites(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := checkAuth(req); res != nil {
		return res, nil
	}
	root := strings.TrimSuffix(req.GetString("path", "/content"), "/")

	var b strings.Builder
	n := 0
	for _, s := range t.sites {
		if !strings.HasPrefix(s.Path, root+"/") {
			continue
		}
		n++
		fmt.Fprintf(&b, "- %s (%s)\n", s.Title, s.Path)
	}
	if n == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No sites found under %s.", root)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d sites under %s:\n%s", n, root, b.String())), nil
}

// SiteInfo describes the site named by the sitePath argument.
func (t *Tools) SiteInfo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := checkAuth(req); res != nil {
		return res, nil
	}
	path := req.GetString("sitePath", "")
	if path == "" {
		return mcp.NewToolResultError("validation error: 'sitePath' is required"), nil
	}
	i := slices.IndexFunc(t.sites, func(s Site) bool { return s.Path == path })
	if i < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("404 not found: no site at %s", path)), nil
	}
	s := t.sites[i]
	return mcp.NewToolResultText(fmt.Sprintf("%s\nPath: %s\nLanguage: %s\nPages: %s",
		s.Title, s.Path, s.Language, strings.Join(s.Pages, ", "))), nil
}

// ReadSites serves the catalog resource.
func (t *Tools) ReadSites(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(t.sites, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("demotools: marshal sites: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

// checkAuth returns an error result when the token argument is missing.
func checkAuth(req mcp.CallToolRequest) *mcp.CallToolResult {
	if req.GetString("token", "") == "" {
		return mcp.NewToolResultError("401 Unauthorized: missing AEM access token")
	}
	return nil
}
