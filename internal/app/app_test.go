package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/aemassist/internal/app"
	"github.com/MrWong99/aemassist/internal/config"
	"github.com/MrWong99/aemassist/internal/mcp"
	mcpmock "github.com/MrWong99/aemassist/internal/mcp/mock"
	"github.com/MrWong99/aemassist/internal/router"
	"github.com/MrWong99/aemassist/pkg/memory"
	memorymock "github.com/MrWong99/aemassist/pkg/memory/mock"
	embeddingsmock "github.com/MrWong99/aemassist/pkg/provider/embeddings/mock"
	llmmock "github.com/MrWong99/aemassist/pkg/provider/llm/mock"
)

// testConfig returns a defaulted config that routes with the rule classifier.
func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Router.Classifier = config.ClassifierRules
	return cfg
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: &embeddingsmock.Provider{EmbedResult: []float32{1, 0}},
	}
}

func testGateway() *mcpmock.Gateway {
	return &mcpmock.Gateway{
		Tools:          []mcp.ToolDescriptor{{Name: "echo"}},
		CallToolResult: mcp.Succeeded([]mcp.ContentItem{{Type: "text", Text: "pong"}}, nil),
		Info:           mcp.ServerInfo{Status: "healthy"},
	}
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, testProviders(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresLLM(t *testing.T) {
	t.Parallel()

	for _, p := range []*app.Providers{nil, {}} {
		if _, err := app.New(context.Background(), testConfig(), p); err == nil {
			t.Errorf("New(%v): expected error", p)
		}
	}
}

func TestNew_HealthReportsSubsystems(t *testing.T) {
	t.Parallel()

	idx := &memorymock.SemanticIndex{
		Chunks: []memory.Chunk{{ID: "1", Content: "Sling models adapt resources.", Embedding: []float32{1, 0}}},
	}
	a := newApp(t, testConfig(), app.WithIndex(idx), app.WithGateway(testGateway()))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["rag_ready"] != true || body["mcp_ready"] != true {
		t.Errorf("body = %v", body)
	}
	if body["tools_available"] != float64(1) {
		t.Errorf("tools_available = %v", body["tools_available"])
	}
	if body["model"] != config.DefaultLLMModel {
		t.Errorf("model = %v", body["model"])
	}
}

func TestNew_EmptyIndexIsNotReady(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Index.Path = filepath.Join(t.TempDir(), "index", "aemassist.db")
	a := newApp(t, cfg, app.WithGateway(testGateway()))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz status = %d, want 503", rec.Code)
	}
}

func TestChat_RoutesToTool(t *testing.T) {
	t.Parallel()

	gw := testGateway()
	a := newApp(t, testConfig(), app.WithIndex(&memorymock.SemanticIndex{}), app.WithGateway(gw))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"echo hello"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["tool_executed"] != "echo" || body["session_id"] != "default" {
		t.Fatalf("body = %v", body)
	}
	if gw.CallCount("CallTool") != 1 {
		t.Errorf("CallTool calls = %d", gw.CallCount("CallTool"))
	}
}

// ─── ApplyConfig ─────────────────────────────────────────────────────────────

func TestApplyConfig_LogLevel(t *testing.T) {
	t.Parallel()

	var lv slog.LevelVar
	cfg := testConfig()
	a := newApp(t, cfg, app.WithIndex(&memorymock.SemanticIndex{}), app.WithGateway(testGateway()), app.WithLevelVar(&lv))

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	a.ApplyConfig(cfg, &next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
}

func TestApplyConfig_ReloadsRules(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	rules := `
version: 1
intents:
  - tool: echo
    pattern: '(?i)^ping$'
    arguments:
      message: pong
guidance:
  - name: generic
    text: "failed"
`
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	a := newApp(t, cfg, app.WithIndex(&memorymock.SemanticIndex{}), app.WithGateway(testGateway()))
	before := a.Router().Rules()

	next := *cfg
	next.Router.RulesFile = path
	a.ApplyConfig(cfg, &next)

	if a.Router().Rules() == before {
		t.Fatal("rules were not replaced")
	}
	resp := a.Router().Handle(context.Background(), "ping")
	if resp.Mode != router.ModeToolExecution {
		t.Errorf("Mode = %q, want tool execution", resp.Mode)
	}
}

func TestApplyConfig_BadRulesKeepsPrevious(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a := newApp(t, cfg, app.WithIndex(&memorymock.SemanticIndex{}), app.WithGateway(testGateway()))
	before := a.Router().Rules()

	next := *cfg
	next.Router.RulesFile = filepath.Join(t.TempDir(), "nope.yaml")
	a.ApplyConfig(cfg, &next)

	if a.Router().Rules() != before {
		t.Error("rules changed after a failed reload")
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.LevelFor(tt.in); got != tt.want {
			t.Errorf("LevelFor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a := newApp(t, cfg, app.WithIndex(&memorymock.SemanticIndex{}), app.WithGateway(testGateway()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), app.WithIndex(&memorymock.SemanticIndex{}), app.WithGateway(testGateway()))
	for range 3 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}
}
