package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// rpcServer answers POSTs by dispatching on the JSON-RPC method and records
// the decoded requests.
type rpcServer struct {
	mu       sync.Mutex
	requests []map[string]any
	headers  []http.Header
	handlers map[string]func(params map[string]any) string // returns the full JSON body
	sse      bool
	info     string
}

func (s *rpcServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, s.info)
		return
	}
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	method, _ := req["method"].(string)
	params, _ := req["params"].(map[string]any)
	h, ok := s.handlers[method]
	if !ok {
		http.Error(w, "no handler", http.StatusInternalServerError)
		return
	}
	body := h(params)
	if s.sse {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		fmt.Fprintf(w, "event: ping\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func (s *rpcServer) last() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestClient(t *testing.T, s *rpcServer, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestListTools(t *testing.T) {
	t.Parallel()
	for _, sse := range []bool{false, true} {
		t.Run(fmt.Sprintf("sse=%v", sse), func(t *testing.T) {
			t.Parallel()
			s := &rpcServer{sse: sse, handlers: map[string]func(map[string]any) string{
				"tools/list": func(map[string]any) string {
					return `{"jsonrpc":"2.0","id":1,"result":{"tools":[
						{"name":"aem-list-sites","description":"List sites","inputSchema":{"type":"object"}},
						{"name":"calculator","description":"Evaluate"}]}}`
				},
			}}
			c := newTestClient(t, s)

			tools := c.ListTools(context.Background())
			if len(tools) != 2 {
				t.Fatalf("len(tools) = %d, want 2", len(tools))
			}
			if tools[0].Name != "aem-list-sites" || tools[0].InputSchema["type"] != "object" {
				t.Errorf("tools[0] = %+v", tools[0])
			}

			req := s.last()
			if req["jsonrpc"] != "2.0" || req["method"] != "tools/list" || req["id"] != float64(1) {
				t.Errorf("request envelope = %v", req)
			}
			if _, ok := req["params"].(map[string]any); !ok {
				t.Errorf("params = %v, want empty object", req["params"])
			}
			h := s.headers[0]
			if h.Get("Content-Type") != "application/json" || !strings.Contains(h.Get("Accept"), "text/event-stream") {
				t.Errorf("headers = %v", h)
			}
		})
	}
}

func TestListTools_ErrorYieldsNil(t *testing.T) {
	t.Parallel()
	s := &rpcServer{handlers: map[string]func(map[string]any) string{
		"tools/list": func(map[string]any) string {
			return `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`
		},
	}}
	c := newTestClient(t, s)
	if tools := c.ListTools(context.Background()); tools != nil {
		t.Errorf("ListTools = %v, want nil", tools)
	}
}

func TestCallTool_Success(t *testing.T) {
	t.Parallel()
	s := &rpcServer{sse: true, handlers: map[string]func(map[string]any) string{
		"tools/call": func(p map[string]any) string {
			args, _ := p["arguments"].(map[string]any)
			return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"%s"}]}}`, args["message"])
		},
	}}
	c := newTestClient(t, s)

	res := c.CallTool(context.Background(), "echo", map[string]any{"message": "hi"})
	if !res.OK() {
		t.Fatalf("failure: %+v", res.Failure)
	}
	if res.Text() != "hi" {
		t.Errorf("Text() = %q, want hi", res.Text())
	}
	if s.last()["params"].(map[string]any)["name"] != "echo" {
		t.Errorf("tool name not sent: %v", s.last())
	}
}

func TestCallTool_AttachesCredentials(t *testing.T) {
	t.Parallel()
	s := &rpcServer{handlers: map[string]func(map[string]any) string{
		"tools/call": func(map[string]any) string {
			return `{"jsonrpc":"2.0","id":1,"result":{"content":[]}}`
		},
	}}
	creds := &mcp.PrefixCredentials{Prefix: "aem-", Server: "https://author", Token: "tok"}
	c := newTestClient(t, s, WithCredentials(creds))

	in := map[string]any{"path": "/content"}
	c.CallTool(context.Background(), "aem-list-sites", in)

	sent := s.last()["params"].(map[string]any)["arguments"].(map[string]any)
	if sent["server"] != "https://author" || sent["token"] != "tok" || sent["path"] != "/content" {
		t.Errorf("sent arguments = %v", sent)
	}
	if _, ok := in["token"]; ok {
		t.Error("caller's map was mutated")
	}

	c.CallTool(context.Background(), "echo", nil)
	sent = s.last()["params"].(map[string]any)["arguments"].(map[string]any)
	if len(sent) != 0 {
		t.Errorf("non-prefixed tool got credentials: %v", sent)
	}
}

func TestCallTool_ProtocolError(t *testing.T) {
	t.Parallel()
	s := &rpcServer{handlers: map[string]func(map[string]any) string{
		"tools/call": func(map[string]any) string {
			return `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid arguments","data":{"error":"path is required"}}}`
		},
	}}
	c := newTestClient(t, s)

	res := c.CallTool(context.Background(), "aem-list-sites", nil)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Failure.Message != "Invalid arguments" || *res.Failure.Code != -32602 {
		t.Errorf("failure = %+v", res.Failure)
	}
	if !strings.Contains(string(res.Failure.Data), "path is required") {
		t.Errorf("data = %s", res.Failure.Data)
	}
}

func TestCallTool_TransportErrors(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()
		c, _ := New(srv.URL)
		res := c.CallTool(context.Background(), "x", nil)
		if res.OK() || *res.Failure.Code != mcp.CodeTransportError {
			t.Fatalf("got %+v", res.Failure)
		}
		if !strings.Contains(res.Failure.Message, "502") {
			t.Errorf("message = %q, want status", res.Failure.Message)
		}
	})

	t.Run("bad body", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<html>not json</html>")
		}))
		defer srv.Close()
		c, _ := New(srv.URL)
		res := c.CallTool(context.Background(), "x", nil)
		if res.OK() || *res.Failure.Code != mcp.CodeTransportError {
			t.Fatalf("got %+v", res.Failure)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		c, _ := New("http://127.0.0.1:1")
		res := c.CallTool(context.Background(), "x", nil)
		if res.OK() || *res.Failure.Code != mcp.CodeTransportError {
			t.Fatalf("got %+v", res.Failure)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)
		c, _ := New(srv.URL, WithTimeout(50*time.Millisecond))
		res := c.CallTool(context.Background(), "x", nil)
		if res.OK() || *res.Failure.Code != mcp.CodeTransportError {
			t.Fatalf("got %+v", res.Failure)
		}
	})

	t.Run("sse without response", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": keepalive\n\n")
		}))
		defer srv.Close()
		c, _ := New(srv.URL)
		if res := c.CallTool(context.Background(), "x", nil); res.OK() {
			t.Fatal("expected failure")
		}
	})
}

func TestCallTool_ApplicationError(t *testing.T) {
	t.Parallel()
	s := &rpcServer{handlers: map[string]func(map[string]any) string{
		"tools/call": func(map[string]any) string {
			return `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"404 Not Found"}],"isError":true}}`
		},
	}}
	c := newTestClient(t, s)
	res := c.CallTool(context.Background(), "aem-get-page", nil)
	if res.OK() || res.Failure.Message != "404 Not Found" {
		t.Errorf("got %+v", res)
	}
}

func TestResources(t *testing.T) {
	t.Parallel()
	s := &rpcServer{handlers: map[string]func(map[string]any) string{
		"resources/list": func(map[string]any) string {
			return `{"jsonrpc":"2.0","id":1,"result":{"resources":[{"uri":"aem://docs","name":"Docs","mimeType":"text/markdown"}]}}`
		},
		"resources/read": func(p map[string]any) string {
			return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"result":{"contents":[{"uri":%q,"mimeType":"text/markdown","text":"# Docs"}]}}`, p["uri"])
		},
	}}
	c := newTestClient(t, s)
	ctx := context.Background()

	res := c.ListResources(ctx)
	if len(res) != 1 || res[0].URI != "aem://docs" || res[0].Name != "Docs" {
		t.Fatalf("ListResources = %+v", res)
	}

	items, err := c.ReadResource(ctx, "aem://docs")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(items) != 1 || items[0].Text != "# Docs" || items[0].URI != "aem://docs" {
		t.Errorf("items = %+v", items)
	}
}

func TestReadResource_Error(t *testing.T) {
	t.Parallel()
	s := &rpcServer{handlers: map[string]func(map[string]any) string{
		"resources/read": func(map[string]any) string {
			return `{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Resource not found"}}`
		},
	}}
	c := newTestClient(t, s)
	if _, err := c.ReadResource(context.Background(), "aem://missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestServerInfo(t *testing.T) {
	t.Parallel()
	s := &rpcServer{info: `{"status":"healthy","server":"aem-mcp","version":"1.2.0","transport":"http"}`}
	c := newTestClient(t, s)

	info, err := c.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}
	if !info.Healthy() || info.Server != "aem-mcp" || info.Version != "1.2.0" {
		t.Errorf("info = %+v", info)
	}
}

func TestReadEventStream_SkipsNonResponses(t *testing.T) {
	t.Parallel()
	body := "id: 1\nevent: message\ndata: not-json\n\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"log\"}\n\ndata:{\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"ok\":true}}\n\n"
	resp, err := readEventStream(strings.NewReader(body))
	if err != nil {
		t.Fatalf("readEventStream: %v", err)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Errorf("result = %s", resp.Result)
	}
}
