// Package jsonrpc implements [mcp.Gateway] by posting one JSON-RPC 2.0
// request per operation to a plain HTTP endpoint.
//
// Servers hosted behind serverless runtimes often answer MCP requests without
// keeping a session and may wrap the response in a single server-sent event.
// Both body shapes are accepted.
package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// infoTimeout bounds the self-description GET.
const infoTimeout = 10 * time.Second

// requestID is sent with every request. Each HTTP round trip carries exactly
// one call, so responses never need to be correlated.
const requestID = 1

// maxEventLine is the largest single SSE line accepted.
const maxEventLine = 4 << 20

var _ mcp.Gateway = (*Client)(nil)

// Client is a stateless JSON-RPC gateway. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	creds      mcp.CredentialProvider
}

// Option is a functional option for [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout bounds each request. Zero selects [mcp.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithCredentials sets the provider consulted before every tool call.
func WithCredentials(p mcp.CredentialProvider) Option {
	return func(cl *Client) {
		if p != nil {
			cl.creds = p
		}
	}
}

// New returns a Client for the endpoint at url.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("jsonrpc: url must not be empty")
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{},
		timeout:    mcp.DefaultTimeout,
		creds:      mcp.NoCredentials{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire types
// ─────────────────────────────────────────────────────────────────────────────

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcError is a JSON-RPC error object.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transport
// ─────────────────────────────────────────────────────────────────────────────

// call performs one round trip. A non-nil error means no protocol response was
// obtained; protocol errors come back inside the response.
func (c *Client) call(ctx context.Context, method string, params any) (*response, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: requestID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return readEventStream(resp.Body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// readEventStream returns the first data line that carries a JSON-RPC result
// or error.
func readEventStream(r io.Reader) (*response, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var out response
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &out); err != nil {
			continue
		}
		if out.Result != nil || out.Error != nil {
			return &out, nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return nil, errors.New("event stream ended without a response")
}

// ─────────────────────────────────────────────────────────────────────────────
// Gateway
// ─────────────────────────────────────────────────────────────────────────────

// ListTools implements [mcp.Gateway].
func (c *Client) ListTools(ctx context.Context) []mcp.ToolDescriptor {
	var out struct {
		Tools []mcp.ToolDescriptor `json:"tools"`
	}
	if err := c.result(ctx, "tools/list", nil, &out); err != nil {
		slog.Warn("mcp: error listing tools", "url", c.url, "err", err)
		return nil
	}
	return out.Tools
}

// CallTool implements [mcp.Gateway].
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) mcp.ToolResult {
	args = c.creds.Attach(name, args)
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return mcp.TransportFailure(err)
	}
	if resp.Error != nil {
		code := resp.Error.Code
		return mcp.Failed(resp.Error.Message, &code, resp.Error.Data)
	}
	return mcp.DecodeCallResult(resp.Result)
}

// ListResources implements [mcp.Gateway].
func (c *Client) ListResources(ctx context.Context) []mcp.Resource {
	var out struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := c.result(ctx, "resources/list", nil, &out); err != nil {
		slog.Warn("mcp: error listing resources", "url", c.url, "err", err)
		return nil
	}
	return out.Resources
}

// ReadResource implements [mcp.Gateway].
func (c *Client) ReadResource(ctx context.Context, uri string) ([]mcp.ContentItem, error) {
	var out struct {
		Contents []struct {
			URI      string `json:"uri"`
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Blob     string `json:"blob"`
		} `json:"contents"`
	}
	if err := c.result(ctx, "resources/read", map[string]any{"uri": uri}, &out); err != nil {
		return nil, fmt.Errorf("jsonrpc: read resource %q: %w", uri, err)
	}
	items := make([]mcp.ContentItem, 0, len(out.Contents))
	for _, rc := range out.Contents {
		typ := "text"
		if rc.Blob != "" {
			typ = "blob"
		}
		items = append(items, mcp.ContentItem{Type: typ, URI: rc.URI, MimeType: rc.MimeType, Text: rc.Text, Data: rc.Blob})
	}
	return items, nil
}

// ServerInfo implements [mcp.Gateway] with a plain GET on the endpoint.
func (c *Client) ServerInfo(ctx context.Context) (mcp.ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return mcp.ServerInfo{}, fmt.Errorf("jsonrpc: server info: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mcp.ServerInfo{}, fmt.Errorf("jsonrpc: server info: %w", err)
	}
	defer resp.Body.Close()

	var info mcp.ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return mcp.ServerInfo{}, fmt.Errorf("jsonrpc: server info: decode: %w", err)
	}
	return info, nil
}

// Close implements [mcp.Gateway].
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// result calls method and decodes a successful result into out.
func (c *Client) result(ctx context.Context, method string, params, out any) error {
	resp, err := c.call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
