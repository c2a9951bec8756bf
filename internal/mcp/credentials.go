package mcp

import (
	"log/slog"
	"maps"
	"strings"
)

// CredentialProvider decides which credentials accompany a tool call.
//
// Attach must not mutate args; it returns the map to send, which may be args
// itself when nothing is attached.
type CredentialProvider interface {
	Attach(toolName string, args map[string]any) map[string]any
}

// SecretSource is implemented by providers that know which values must never
// appear in user-facing output.
type SecretSource interface {
	Secrets() []string
}

// NoCredentials attaches nothing.
type NoCredentials struct{}

// Attach returns args unchanged.
func (NoCredentials) Attach(_ string, args map[string]any) map[string]any { return args }

var (
	_ CredentialProvider = NoCredentials{}
	_ CredentialProvider = (*PrefixCredentials)(nil)
	_ SecretSource       = (*PrefixCredentials)(nil)
)

// PrefixCredentials attaches a server URL and an access token to every tool
// whose name starts with Prefix. Existing "server" and "token" arguments are
// overwritten.
type PrefixCredentials struct {
	Prefix string
	Server string
	Token  string
}

// Attach implements [CredentialProvider].
func (p *PrefixCredentials) Attach(toolName string, args map[string]any) map[string]any {
	if p.Prefix == "" || !strings.HasPrefix(toolName, p.Prefix) {
		return args
	}

	out := make(map[string]any, len(args)+2)
	maps.Copy(out, args)

	if p.Server != "" {
		out["server"] = p.Server
		slog.Info("mcp: attaching server credential", "tool", toolName, "server", p.Server)
	} else {
		slog.Warn("mcp: server credential not configured", "tool", toolName)
	}

	if p.Token != "" {
		out["token"] = p.Token
		slog.Info("mcp: attaching token credential", "tool", toolName, "token", MaskSecret(p.Token))
	} else {
		slog.Warn("mcp: token credential not configured", "tool", toolName)
	}
	return out
}

// Secrets implements [SecretSource]. Both injected values are secret.
func (p *PrefixCredentials) Secrets() []string {
	var out []string
	for _, v := range []string{p.Server, p.Token} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// MaskSecret renders s as "***" followed by at most its last 10 characters.
func MaskSecret(s string) string {
	r := []rune(s)
	if len(r) > 10 {
		r = r[len(r)-10:]
	}
	return "***" + string(r)
}
