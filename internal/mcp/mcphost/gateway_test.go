package mcphost

import (
	"context"
	"errors"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/aemassist/internal/mcp"
)

type echoIn struct {
	Message string `json:"message"`
	Server  string `json:"server,omitempty"`
	Token   string `json:"token,omitempty"`
}

// newTestServer builds an SDK server with a few tools and one resource.
func newTestServer() *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-tools", Version: "0.1.0"}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: "echo", Description: "Echo a message"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in echoIn) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: in.Message}}}, nil, nil
		})

	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: "aem-whoami", Description: "Report credentials"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in echoIn) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: in.Server + "|" + in.Token}}}, nil, nil
		})

	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: "fail", Description: "Always fails"},
		func(context.Context, *mcpsdk.CallToolRequest, any) (*mcpsdk.CallToolResult, any, error) {
			return nil, nil, errors.New("401 Unauthorized")
		})

	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: "thumbnail", Description: "Returns an image"},
		func(context.Context, *mcpsdk.CallToolRequest, any) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{
				&mcpsdk.ImageContent{Data: []byte("png-bytes"), MIMEType: "image/png"},
			}}, nil, nil
		})

	mcpsdk.AddTool(s, &mcpsdk.Tool{Name: "slow", Description: "Sleeps"},
		func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ any) (*mcpsdk.CallToolResult, any, error) {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &mcpsdk.CallToolResult{}, nil, nil
			}
		})

	s.AddResource(&mcpsdk.Resource{Name: "guide", URI: "aem://guide", Description: "Guide", MIMEType: "text/markdown"},
		func(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
			return &mcpsdk.ReadResourceResult{Contents: []*mcpsdk.ResourceContents{
				{URI: req.Params.URI, MIMEType: "text/markdown", Text: "# Guide"},
			}}, nil
		})
	return s
}

func connectTest(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := newTestServer().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	gw, err := ConnectTransport(ctx, "test", clientT, opts...)
	if err != nil {
		t.Fatalf("ConnectTransport: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestGateway_ListTools(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)

	tools := gw.ListTools(context.Background())
	names := map[string]mcp.ToolDescriptor{}
	for _, td := range tools {
		names[td.Name] = td
	}
	for _, want := range []string{"echo", "aem-whoami", "fail", "thumbnail", "slow"} {
		if _, ok := names[want]; !ok {
			t.Errorf("tool %q missing from %v", want, tools)
		}
	}
	echo := names["echo"]
	if echo.Description != "Echo a message" {
		t.Errorf("description = %q", echo.Description)
	}
	if echo.InputSchema["type"] != "object" {
		t.Errorf("input schema = %v", echo.InputSchema)
	}
}

func TestGateway_CallTool(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)

	res := gw.CallTool(context.Background(), "echo", map[string]any{"message": "hello"})
	if !res.OK() {
		t.Fatalf("failure: %+v", res.Failure)
	}
	if res.Text() != "hello" {
		t.Errorf("Text() = %q", res.Text())
	}
	if len(res.Raw) == 0 {
		t.Error("Raw not populated")
	}
}

func TestGateway_CallToolCredentials(t *testing.T) {
	t.Parallel()
	creds := &mcp.PrefixCredentials{Prefix: "aem-", Server: "https://author", Token: "tok"}
	gw := connectTest(t, WithCredentials(creds))

	res := gw.CallTool(context.Background(), "aem-whoami", map[string]any{})
	if res.Text() != "https://author|tok" {
		t.Errorf("Text() = %q, want credentials echoed", res.Text())
	}
}

func TestGateway_CallToolApplicationError(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)

	res := gw.CallTool(context.Background(), "fail", nil)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Failure.Message != "401 Unauthorized" {
		t.Errorf("message = %q", res.Failure.Message)
	}
}

func TestGateway_CallToolUnknown(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)
	if res := gw.CallTool(context.Background(), "does-not-exist", nil); res.OK() {
		t.Fatal("expected failure for unknown tool")
	}
}

func TestGateway_CallToolImage(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)

	res := gw.CallTool(context.Background(), "thumbnail", nil)
	if !res.OK() || len(res.Content) != 1 {
		t.Fatalf("res = %+v", res)
	}
	img := res.Content[0]
	if img.Type != "image" || img.MimeType != "image/png" || img.Data != "cG5nLWJ5dGVz" {
		t.Errorf("image item = %+v", img)
	}
}

func TestGateway_CallToolTimeout(t *testing.T) {
	t.Parallel()
	gw := connectTest(t, WithTimeout(50*time.Millisecond))

	start := time.Now()
	res := gw.CallTool(context.Background(), "slow", nil)
	if res.OK() {
		t.Fatal("expected failure on timeout")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("call was not bounded by the timeout")
	}
}

func TestGateway_Resources(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)
	ctx := context.Background()

	res := gw.ListResources(ctx)
	if len(res) != 1 || res[0].URI != "aem://guide" || res[0].MimeType != "text/markdown" {
		t.Fatalf("ListResources = %+v", res)
	}
	items, err := gw.ReadResource(ctx, "aem://guide")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(items) != 1 || items[0].Text != "# Guide" {
		t.Errorf("items = %+v", items)
	}
}

func TestGateway_ServerInfo(t *testing.T) {
	t.Parallel()
	gw := connectTest(t)

	info, err := gw.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}
	if !info.Healthy() || info.Server != "test-tools" || info.Version != "0.1.0" {
		t.Errorf("info = %+v", info)
	}
}

func TestConnect_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cases := []mcp.ServerConfig{
		{Name: "a", Transport: mcp.TransportStdio},
		{Name: "b", Transport: mcp.TransportStreamableHTTP},
		{Name: "c", Transport: mcp.TransportJSONRPC, URL: "http://x"},
	}
	for _, cfg := range cases {
		if _, err := Connect(ctx, cfg); err == nil {
			t.Errorf("Connect(%+v) succeeded, want error", cfg)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	exe, args := splitCommand("  /bin/tools --port 9 ")
	if exe != "/bin/tools" || len(args) != 2 || args[1] != "9" {
		t.Errorf("splitCommand = %q %v", exe, args)
	}
	if exe, _ := splitCommand(""); exe != "" {
		t.Errorf("empty command gave %q", exe)
	}
}
