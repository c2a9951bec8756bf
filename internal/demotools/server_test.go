package demotools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text, res.IsError
		}
	}
	return "", res.IsError
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"-5 + 2", -3},
		{"7 / 2", 3.5},
		{"10 % 4", 2},
		{"1.5 * 2", 3},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expr)
		if err != nil {
			t.Errorf("Evaluate(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Evaluate("1 / 0"); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("1/0: err = %v", err)
	}
	for _, expr := range []string{"x + 1", "\"a\"", "2 ** 3", "f(1)", "1 << 2"} {
		if _, err := Evaluate(expr); err == nil {
			t.Errorf("Evaluate(%q): expected error", expr)
		}
	}
}

func TestEchoAndCalculator(t *testing.T) {
	t.Parallel()

	tools := New(nil)
	if text, isErr := call(t, tools.Echo, map[string]any{"message": "hi"}); isErr || text != "hi" {
		t.Errorf("echo = %q, %v", text, isErr)
	}
	if _, isErr := call(t, tools.Echo, nil); !isErr {
		t.Error("echo without message should fail")
	}
	if text, isErr := call(t, tools.Calculate, map[string]any{"expression": "6 * 7"}); isErr || text != "6 * 7 = 42" {
		t.Errorf("calculator = %q, %v", text, isErr)
	}
	if text, isErr := call(t, tools.Calculate, map[string]any{"expression": "1/0"}); !isErr || !strings.Contains(text, "division by zero") {
		t.Errorf("calculator 1/0 = %q, %v", text, isErr)
	}
}

func TestSiteTools(t *testing.T) {
	t.Parallel()

	tools := New(nil)
	auth := map[string]any{"server": "https://author.example", "token": "tok"}

	text, isErr := call(t, tools.ListSites, auth)
	if isErr || !strings.Contains(text, "Found 3 sites") || !strings.Contains(text, "/content/wknd") {
		t.Errorf("list = %q, %v", text, isErr)
	}

	text, isErr = call(t, tools.SiteInfo, map[string]any{"sitePath": "/content/wknd", "token": "tok"})
	if isErr || !strings.Contains(text, "WKND Adventures") {
		t.Errorf("info = %q, %v", text, isErr)
	}

	text, isErr = call(t, tools.SiteInfo, map[string]any{"sitePath": "/content/nope", "token": "tok"})
	if !isErr || !strings.Contains(text, "404") {
		t.Errorf("unknown site = %q, %v", text, isErr)
	}

	text, isErr = call(t, tools.ListSites, map[string]any{"path": "/content"})
	if !isErr || !strings.HasPrefix(text, "401") {
		t.Errorf("no token = %q, %v", text, isErr)
	}
}

func TestReadSites(t *testing.T) {
	t.Parallel()

	tools := New([]Site{{Path: "/content/a", Title: "A"}})
	req := mcp.ReadResourceRequest{}
	req.Params.URI = sitesURI
	contents, err := tools.ReadSites(context.Background(), req)
	if err != nil {
		t.Fatalf("ReadSites: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, `"/content/a"`) {
		t.Errorf("contents = %+v", contents)
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	t.Parallel()

	s := NewServer(New(nil))
	tools := s.ListTools()
	for _, name := range []string{"echo", "calculator", "aem-list-sites", "aem-get-site-info"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}
