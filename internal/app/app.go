// Package app wires the assistant's subsystems into a running server.
//
// New opens the documentation index, connects to the tool server, builds
// the retrieval answerer, the intent router and the plain chat responder,
// and assembles the HTTP server. Run serves until the context ends and
// Shutdown releases everything in reverse order.
//
// Tests inject doubles through options (WithIndex, WithGateway, ...). Any
// subsystem not injected is created from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aemassist/internal/chat"
	"github.com/MrWong99/aemassist/internal/config"
	"github.com/MrWong99/aemassist/internal/health"
	"github.com/MrWong99/aemassist/internal/mcp"
	"github.com/MrWong99/aemassist/internal/mcp/jsonrpc"
	"github.com/MrWong99/aemassist/internal/mcp/mcphost"
	"github.com/MrWong99/aemassist/internal/rag"
	"github.com/MrWong99/aemassist/internal/resilience"
	"github.com/MrWong99/aemassist/internal/router"
	"github.com/MrWong99/aemassist/internal/server"
	"github.com/MrWong99/aemassist/internal/session"
	"github.com/MrWong99/aemassist/pkg/memory"
	"github.com/MrWong99/aemassist/pkg/memory/postgres"
	"github.com/MrWong99/aemassist/pkg/memory/sqlite"
	"github.com/MrWong99/aemassist/pkg/provider/embeddings"
	"github.com/MrWong99/aemassist/pkg/provider/llm"
)

// janitorInterval is how often expired sessions are swept.
const janitorInterval = time.Minute

// Providers holds the model backends built from the provider registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	level     *slog.LevelVar
	metricsH  http.Handler

	index     memory.SemanticIndex
	indexErr  error
	gw        mcp.Gateway
	metered   *mcp.Metered
	store     session.Store
	answerer  *rag.Answerer
	router    *router.Router
	responder *chat.Responder
	server    *server.Server

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithIndex injects a semantic index instead of opening one from config.
func WithIndex(idx memory.SemanticIndex) Option {
	return func(a *App) { a.index = idx }
}

// WithGateway injects a tool gateway instead of connecting from config.
func WithGateway(gw mcp.Gateway) Option {
	return func(a *App) { a.gw = gw }
}

// WithSessionStore injects the conversation store.
func WithSessionStore(s session.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLevelVar lets config reloads change the log level of the handler
// that main installed.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New wires all subsystems. A missing index or an unreachable tool server is
// logged and degrades the corresponding feature instead of failing.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, fmt.Errorf("app: an llm provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Index ─────────────────────────────────────────────────────────
	a.initIndex(ctx)

	// ── 2. Tool gateway ──────────────────────────────────────────────────
	if err := a.initGateway(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}

	// ── 3. Retrieval ─────────────────────────────────────────────────────
	ragOpts := []rag.Option{rag.WithTopK(cfg.Index.TopK)}
	if a.indexErr != nil {
		ragOpts = append(ragOpts, rag.WithLoadError(a.indexErr))
	}
	a.answerer = rag.New(a.index, providers.Embeddings, providers.LLM, ragOpts...)

	// ── 4. Sessions and plain chat ───────────────────────────────────────
	if a.store == nil {
		a.store = session.NewMemStore(
			session.WithMaxMessages(cfg.Session.MaxMessages),
			session.WithCapacity(cfg.Session.Capacity),
			session.WithTTL(max(cfg.Session.TTL, 0)),
		)
	}
	a.responder = chat.New(providers.LLM, a.store)

	// ── 5. Router ────────────────────────────────────────────────────────
	if err := a.initRouter(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init router: %w", err)
	}

	// ── 6. HTTP server ───────────────────────────────────────────────────
	a.server = server.New(a.router,
		server.WithPlainChat(a.responder),
		server.WithSessions(a.store),
		server.WithKnowledge(a.answerer),
		server.WithGateway(a.gw),
		server.WithToolStats(a.metered),
		server.WithModel(cfg.Providers.LLM.Model),
		server.WithCORSOrigin(cfg.Server.CORSOrigin),
		server.WithProbes(health.New(health.Gateway(a.gw), health.Ready("rag", a.answerer.IsReady))),
		server.WithMetricsHandler(a.metricsH),
	)

	a.logReadiness(ctx)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initIndex opens the configured index backend. Failure leaves retrieval
// disabled.
func (a *App) initIndex(ctx context.Context) {
	if a.index != nil {
		return
	}
	var (
		idx memory.SemanticIndex
		err error
	)
	switch a.cfg.Index.Backend {
	case config.IndexPostgres:
		idx, err = postgres.NewStore(ctx, a.cfg.Index.PostgresDSN, a.cfg.Index.Dimensions)
	default:
		idx, err = sqlite.Open(a.cfg.Index.Path)
	}
	if err != nil {
		slog.Warn("documentation index unavailable, knowledge questions get the fallback reply",
			"backend", a.cfg.Index.Backend, "err", err)
		a.indexErr = err
		return
	}
	a.index = idx
	a.closers = append(a.closers, idx.Close)
}

// initGateway connects to the tool server and layers the breaker and the
// per-tool statistics on top.
func (a *App) initGateway(ctx context.Context) error {
	if a.gw == nil {
		gw, err := a.dialGateway(ctx)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, gw.Close)
		a.gw = resilience.NewGateway(gw, resilience.CircuitBreakerConfig{Name: a.cfg.MCP.Name})
	}
	a.metered = mcp.NewMetered(a.gw, 0)
	a.gw = a.metered
	return nil
}

func (a *App) dialGateway(ctx context.Context) (mcp.Gateway, error) {
	cfg := a.cfg.MCP
	creds := a.credentials()

	switch cfg.Transport {
	case mcp.TransportStdio, mcp.TransportStreamableHTTP:
		gw, err := mcphost.Connect(ctx, cfg.ServerConfig(), mcphost.WithCredentials(creds))
		if err != nil {
			return nil, err
		}
		slog.Info("connected to tool server", "name", cfg.Name, "transport", cfg.Transport)
		return gw, nil
	default:
		if cfg.URL == "" {
			slog.Warn("no tool server configured; tool requests will fail", "name", cfg.Name)
			return mcp.Unavailable{}, nil
		}
		return jsonrpc.New(cfg.URL,
			jsonrpc.WithTimeout(cfg.Timeout),
			jsonrpc.WithCredentials(creds),
			jsonrpc.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
		)
	}
}

func (a *App) credentials() mcp.CredentialProvider {
	c := a.cfg.Credentials
	if c.Disabled {
		return mcp.NoCredentials{}
	}
	return &mcp.PrefixCredentials{Prefix: c.Prefix, Server: c.Server, Token: c.Token}
}

func (a *App) initRouter(ctx context.Context) error {
	rules, err := router.LoadRuleSet(a.cfg.Router.RulesFile)
	if err != nil {
		return err
	}

	var cls router.Classifier
	if a.cfg.Router.Classifier == config.ClassifierLLM {
		cls = router.NewLLMClassifier(a.providers.LLM)
	}

	opts := []router.Option{
		router.WithRules(rules),
		router.WithFuzzyThreshold(a.cfg.Router.FuzzyThreshold),
		router.WithThumbnailBaseURL(a.cfg.Router.AssetThumbnailBaseURL),
	}
	if src, ok := a.credentials().(mcp.SecretSource); ok {
		opts = append(opts, router.WithSecrets(src))
	}
	if a.cfg.Router.LLMFallback {
		opts = append(opts, router.WithConversational(a.responder))
	}
	a.router = router.New(ctx, a.gw, a.answerer, cls, opts...)
	return nil
}

// logReadiness probes retrieval and the tool server concurrently and logs
// what is available.
func (a *App) logReadiness(ctx context.Context) {
	var ragReady, mcpReady bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ragReady = a.answerer.IsReady(gctx)
		return nil
	})
	g.Go(func() error {
		info, err := a.gw.ServerInfo(gctx)
		mcpReady = err == nil && info.Healthy()
		return nil
	})
	_ = g.Wait()

	slog.Info("assistant initialised",
		"rag_ready", ragReady,
		"mcp_ready", mcpReady,
		"tools_available", len(a.router.Tools()),
		"classifier", a.cfg.Router.Classifier,
	)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Router returns the intent router.
func (a *App) Router() *router.Router { return a.router }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and sweeps idle sessions until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if ms, ok := a.store.(*session.MemStore); ok {
		g.Go(func() error {
			ms.Janitor(gctx, janitorInterval)
			return nil
		})
	}
	g.Go(func() error {
		var cert, key string
		if tls := a.cfg.Server.TLS; tls != nil {
			cert, key = tls.CertFile, tls.KeyFile
		}
		return a.server.ListenAndServe(gctx, a.cfg.Server.ListenAddr, cert, key)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the parts of a reloaded config that can change at
// runtime and logs the sections that need a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LevelFor(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RulesChanged {
		rules, err := router.LoadRuleSet(d.NewRulesFile)
		if err != nil {
			slog.Warn("keeping previous routing rules", "rules_file", d.NewRulesFile, "err", err)
		} else {
			a.router.SetRules(rules)
			slog.Info("routing rules reloaded", "rules_file", d.NewRulesFile)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// LevelFor maps a config log level onto slog.
func LevelFor(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes subsystems in reverse-init order. Closers still pending
// when ctx expires are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				err = ctx.Err()
				return
			}
			if cerr := a.closers[i](); cerr != nil {
				slog.Warn("closer error", "index", i, "err", cerr)
			}
		}
		slog.Info("shutdown complete")
	})
	return err
}

func (a *App) closeAll() {
	_ = a.Shutdown(context.Background())
}
