// Package mock provides an in-memory test double for [mcp.Gateway].
//
// [Gateway] records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use.
//
//	gw := &mock.Gateway{Tools: []mcp.ToolDescriptor{{Name: "echo"}}}
//	gw.CallToolResult = mcp.Succeeded([]mcp.ContentItem{{Type: "text", Text: "hi"}}, nil)
//
//	// inject gw into the system under test …
//
//	if got := gw.CallCount("CallTool"); got != 1 {
//	    t.Errorf("expected 1 CallTool call, got %d", got)
//	}
package mock

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// Call records the name and non-context arguments of one method invocation.
type Call struct {
	Method string
	Args   []any
}

// Gateway is a configurable test double for [mcp.Gateway].
type Gateway struct {
	mu    sync.Mutex
	calls []Call

	// ──── ListTools ────────────────────────────────────────────────────────

	// Tools is returned by ListTools.
	Tools []mcp.ToolDescriptor

	// ──── CallTool ─────────────────────────────────────────────────────────

	// CallToolResult is returned by CallTool when CallToolFunc is nil.
	CallToolResult mcp.ToolResult

	// CallToolFunc, if set, computes the result per call.
	CallToolFunc func(ctx context.Context, name string, args map[string]any) mcp.ToolResult

	// Credentials, if set, is applied to args before they are recorded, the
	// way a real gateway attaches them before dispatch.
	Credentials mcp.CredentialProvider

	// ──── Resources ────────────────────────────────────────────────────────

	Resources       []mcp.Resource
	ReadResourceRes []mcp.ContentItem
	ReadResourceErr error

	// ──── ServerInfo / Close ───────────────────────────────────────────────

	Info     mcp.ServerInfo
	InfoErr  error
	CloseErr error
}

var _ mcp.Gateway = (*Gateway)(nil)

// Calls returns a copy of all recorded invocations.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallCount returns how many times method was invoked.
func (g *Gateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastArgs returns the arguments of the most recent CallTool, or nil.
func (g *Gateway) LastArgs() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i].Method == "CallTool" {
			args, _ := g.calls[i].Args[1].(map[string]any)
			return args
		}
	}
	return nil
}

func (g *Gateway) record(method string, args ...any) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Method: method, Args: args})
	g.mu.Unlock()
}

// ListTools implements [mcp.Gateway].
func (g *Gateway) ListTools(context.Context) []mcp.ToolDescriptor {
	g.record("ListTools")
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.Tools)
}

// CallTool implements [mcp.Gateway].
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) mcp.ToolResult {
	g.mu.Lock()
	creds, fn, res := g.Credentials, g.CallToolFunc, g.CallToolResult
	g.mu.Unlock()

	if creds != nil {
		args = creds.Attach(name, args)
	}
	g.record("CallTool", name, maps.Clone(args))
	if fn != nil {
		return fn(ctx, name, args)
	}
	return res
}

// ListResources implements [mcp.Gateway].
func (g *Gateway) ListResources(context.Context) []mcp.Resource {
	g.record("ListResources")
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.Resources)
}

// ReadResource implements [mcp.Gateway].
func (g *Gateway) ReadResource(_ context.Context, uri string) ([]mcp.ContentItem, error) {
	g.record("ReadResource", uri)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ReadResourceRes, g.ReadResourceErr
}

// ServerInfo implements [mcp.Gateway].
func (g *Gateway) ServerInfo(context.Context) (mcp.ServerInfo, error) {
	g.record("ServerInfo")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Info, g.InfoErr
}

// Close implements [mcp.Gateway].
func (g *Gateway) Close() error {
	g.record("Close")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.CloseErr
}
