package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// errTransport marks a tool result that carries a transport failure so the
// breaker can count it.
var errTransport = errors.New("transport failure")

// Gateway puts a [CircuitBreaker] in front of a tool server. Only transport
// failures count against the breaker; tool errors reported by the server do
// not. While the breaker is open CallTool fails fast with a transport
// failure.
type Gateway struct {
	mcp.Gateway
	breaker *CircuitBreaker
}

var _ mcp.Gateway = (*Gateway)(nil)

// NewGateway wraps gw.
func NewGateway(gw mcp.Gateway, cfg CircuitBreakerConfig) *Gateway {
	return &Gateway{Gateway: gw, breaker: NewCircuitBreaker(cfg)}
}

// State reports the breaker state.
func (g *Gateway) State() State { return g.breaker.State() }

// CallTool implements [mcp.Gateway].
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) mcp.ToolResult {
	var res mcp.ToolResult
	err := g.breaker.Execute(func() error {
		res = g.Gateway.CallTool(ctx, name, args)
		if f := res.Failure; f != nil && f.Code != nil && *f.Code == mcp.CodeTransportError {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errTransport
		}
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		return mcp.TransportFailure(fmt.Errorf("tool server %q unavailable: %w", g.breaker.cfg.Name, err))
	}
	return res
}
