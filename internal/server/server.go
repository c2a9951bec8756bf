// Package server exposes the assistant over HTTP.
//
// Routes:
//
//	POST /api/chat        route one message through the intent router
//	POST /api/plain-chat  talk to the model with a per-session history
//	POST /api/reset       forget a session's history
//	GET  /api/health      model name and readiness of retrieval and tools
//	GET  /api/tools       tool catalog with recent call statistics
//	GET  /api/resources   resources advertised by the tool server
//	GET  /api/chat/ws     websocket variant of /api/chat
//
// The probes from the health package and the Prometheus /metrics endpoint are
// mounted next to them. Every route passes through panic recovery, CORS and
// the tracing middleware.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/aemassist/internal/health"
	"github.com/MrWong99/aemassist/internal/mcp"
	"github.com/MrWong99/aemassist/internal/observe"
	"github.com/MrWong99/aemassist/internal/router"
)

// DefaultSessionID is used when a request names no session.
const DefaultSessionID = "default"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// errNoMessage is the client-facing text for an empty message.
const errNoMessage = "No message provided"

// Router routes one message. [*router.Router] implements it.
type Router interface {
	HandleSession(ctx context.Context, sessionID, message string) router.Response
	Tools() []mcp.ToolDescriptor
}

// PlainChat holds free-form conversations. [*chat.Responder] implements it.
type PlainChat interface {
	Reply(ctx context.Context, sessionID, message string) (string, error)
}

// Resetter forgets a session. [session.Store] implements it.
type Resetter interface {
	Reset(ctx context.Context, sessionID string) bool
}

// ToolStats reports per-tool call statistics. [*mcp.Metered] implements it.
type ToolStats interface {
	Health() []mcp.ToolHealth
}

// Server holds the HTTP handlers. Build it with [New].
type Server struct {
	rt       Router
	plain    PlainChat
	sessions Resetter
	kb       router.Knowledge
	gw       mcp.Gateway
	stats    ToolStats
	probes   *health.Handler
	metrics  *observe.Metrics
	model    string
	origin   string
	metricsH http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithPlainChat enables /api/plain-chat.
func WithPlainChat(p PlainChat) Option { return func(s *Server) { s.plain = p } }

// WithSessions sets the store cleared by /api/reset.
func WithSessions(r Resetter) Option { return func(s *Server) { s.sessions = r } }

// WithKnowledge reports retrieval readiness in /api/health.
func WithKnowledge(kb router.Knowledge) Option { return func(s *Server) { s.kb = kb } }

// WithGateway reports tool server readiness and serves /api/resources.
func WithGateway(gw mcp.Gateway) Option { return func(s *Server) { s.gw = gw } }

// WithToolStats adds call statistics to /api/tools.
func WithToolStats(t ToolStats) Option { return func(s *Server) { s.stats = t } }

// WithProbes mounts /healthz and /readyz.
func WithProbes(h *health.Handler) Option { return func(s *Server) { s.probes = h } }

// WithModel sets the model name reported by /api/health.
func WithModel(name string) Option { return func(s *Server) { s.model = name } }

// WithCORSOrigin sets Access-Control-Allow-Origin. Defaults to "*".
func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metricsH = h } }

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a server around rt.
func New(rt Router, opts ...Option) *Server {
	s := &Server{rt: rt, origin: "*", metrics: observe.DefaultMetrics()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the complete route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/plain-chat", s.handlePlainChat)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /api/resources", s.handleResources)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	if s.probes != nil {
		s.probes.Register(mux)
	}
	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}

	var h http.Handler = mux
	h = recoverer(h)
	h = cors(s.origin, h)
	h = observe.Middleware(s.metrics, mux)(h)
	return h
}

// ListenAndServe serves [Server.Handler] on addr until ctx is cancelled, then
// shuts down gracefully. TLS is used when both certFile and keyFile are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("server: listening", "addr", addr, "tls", certFile != "")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ──── Handlers ─────────────────────────────────────────────────────────────

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (r *chatRequest) normalize() {
	r.Message = strings.TrimSpace(r.Message)
	if r.SessionID == "" {
		r.SessionID = DefaultSessionID
	}
}

type chatResponse struct {
	router.Response
	SessionID string `json:"session_id"`
}

func (s *Server) chat(ctx context.Context, req chatRequest) chatResponse {
	return chatResponse{Response: s.rt.HandleSession(ctx, req.SessionID, req.Message), SessionID: req.SessionID}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.chat(r.Context(), req))
}

func (s *Server) handlePlainChat(w http.ResponseWriter, r *http.Request) {
	if s.plain == nil {
		writeError(w, http.StatusServiceUnavailable, "plain chat is not configured")
		return
	}
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	text, err := s.plain.Reply(r.Context(), req.SessionID, req.Message)
	if err != nil {
		observe.Logger(r.Context()).Error("server: plain chat failed", "session_id", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": text, "session_id": req.SessionID})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.normalize()
	if s.sessions != nil {
		s.sessions.Reset(r.Context(), req.SessionID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation reset", "session_id": req.SessionID})
}

type healthResponse struct {
	Status         string `json:"status"`
	Model          string `json:"model"`
	RAGReady       bool   `json:"rag_ready"`
	MCPReady       bool   `json:"mcp_ready"`
	ToolsAvailable int    `json:"tools_available"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "healthy", Model: s.model, ToolsAvailable: len(s.rt.Tools())}
	if s.kb != nil {
		res.RAGReady = s.kb.IsReady(r.Context())
	}
	if s.gw != nil {
		info, err := s.gw.ServerInfo(r.Context())
		res.MCPReady = err == nil && info.Healthy()
	}
	writeJSON(w, http.StatusOK, res)
}

type toolEntry struct {
	mcp.ToolDescriptor
	Stats *mcp.ToolHealth `json:"stats,omitempty"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]mcp.ToolHealth{}
	if s.stats != nil {
		for _, h := range s.stats.Health() {
			stats[h.Name] = h
		}
	}
	tools := s.rt.Tools()
	out := make([]toolEntry, 0, len(tools))
	for _, t := range tools {
		e := toolEntry{ToolDescriptor: t}
		if h, ok := stats[t.Name]; ok {
			e.Stats = &h
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	resources := []mcp.Resource{}
	if s.gw != nil {
		if rs := s.gw.ListResources(r.Context()); rs != nil {
			resources = rs
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// ──── Helpers ──────────────────────────────────────────────────────────────

func decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	req.normalize()
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, errNoMessage)
		return req, false
	}
	return req, true
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
