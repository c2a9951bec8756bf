// Package router decides, per message, how the assistant answers: by running
// a remote tool, by answering from the documentation index, or with a
// conversational reply.
//
// The decision runs in three steps:
//
//  1. A [Classifier] turns the message into an [Intent]. A failed or
//     unparseable classification never executes a tool.
//  2. An executable intent is completed with table-driven default arguments
//     and sent through the [mcp.Gateway]. Success and failure are both
//     rendered as markdown; failures carry guidance from the [RuleSet].
//  3. Otherwise a knowledge question about the product goes to the
//     [Knowledge] base when it is ready, and everything else gets the
//     conversational fallback.
//
// The tool catalog is fetched once in [New] and never refreshed.
package router

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/aemassist/internal/mcp"
	"github.com/MrWong99/aemassist/internal/observe"
	"github.com/MrWong99/aemassist/internal/rag"
)

// Mode tags how a message was handled.
type Mode string

// Routing modes.
const (
	ModeToolExecution  Mode = "mcp_execution"
	ModeToolError      Mode = "mcp_error"
	ModeRAG            Mode = "rag"
	ModeConversational Mode = "conversational"
)

// DefaultFuzzyThreshold is the Jaro-Winkler score above which a misspelled
// tool name is mapped onto a catalog entry.
const DefaultFuzzyThreshold = 0.9

// FallbackText is the fixed conversational reply.
const FallbackText = "I can help you with:\n\n" +
	"🔧 **AEM Actions**: 'list sites', 'create microsite', 'get site info', etc.\n" +
	"📚 **Knowledge**: 'What is AEM?', 'How does AEM work?', etc.\n" +
	"🧮 **Tools**: 'calculate', 'echo', and more.\n\n" +
	"What would you like to do?"

// Knowledge answers documentation questions. [rag.Answerer] implements it.
type Knowledge interface {
	IsReady(ctx context.Context) bool
	Query(ctx context.Context, question string) rag.Result
}

// Conversational produces free-form replies for a session.
type Conversational interface {
	Reply(ctx context.Context, sessionID, message string) (string, error)
}

// Response is the outcome of handling one message.
type Response struct {
	Text         string         `json:"response"`
	Mode         Mode           `json:"mode"`
	ToolExecuted string         `json:"tool_executed,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	Sources      []rag.Source   `json:"sources"`
	Error        string         `json:"error,omitempty"`
	ErrorCode    *int           `json:"error_code,omitempty"`
	Arguments    map[string]any `json:"arguments,omitempty"`
}

// Router is safe for concurrent use.
type Router struct {
	gw    mcp.Gateway
	kb    Knowledge
	cls   Classifier
	rules atomic.Pointer[RuleSet]
	conv  Conversational

	catalog   []mcp.ToolDescriptor
	threshold float64
	thumbBase string
	secrets   []string
	metrics   *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Router)

// WithRules replaces the embedded default rule set.
func WithRules(rs *RuleSet) Option {
	return func(r *Router) {
		if rs != nil {
			r.rules.Store(rs)
		}
	}
}

// WithConversational routes fallback messages that carry a session id to c
// instead of returning [FallbackText].
func WithConversational(c Conversational) Option {
	return func(r *Router) { r.conv = c }
}

// WithFuzzyThreshold sets the tool-name resolution threshold. A value of 1 or
// more disables fuzzy resolution.
func WithFuzzyThreshold(t float64) Option {
	return func(r *Router) {
		if t > 0 {
			r.threshold = t
		}
	}
}

// WithThumbnailBaseURL renders image results that carry a URI as links below
// base.
func WithThumbnailBaseURL(base string) Option {
	return func(r *Router) { r.thumbBase = base }
}

// WithSecrets lists credential values that must never appear in output.
func WithSecrets(src mcp.SecretSource) Option {
	return func(r *Router) {
		if src != nil {
			r.secrets = src.Secrets()
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New builds a router and fetches the tool catalog from gw. An unreachable
// gateway leaves the catalog empty; the router still answers knowledge and
// conversational messages. kb may be nil.
func New(ctx context.Context, gw mcp.Gateway, kb Knowledge, cls Classifier, opts ...Option) *Router {
	r := &Router{
		gw:        gw,
		kb:        kb,
		cls:       cls,
		threshold: DefaultFuzzyThreshold,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.rules.Load() == nil {
		r.rules.Store(DefaultRuleSet())
	}
	if r.cls == nil {
		r.cls = liveRules{r}
	}
	r.catalog = gw.ListTools(ctx)
	slog.Info("router: tool catalog loaded", "tools", len(r.catalog))
	return r
}

// SetRules swaps the rule set used by later messages. A nil rs is ignored.
func (r *Router) SetRules(rs *RuleSet) {
	if rs != nil {
		r.rules.Store(rs)
	}
}

// Rules returns the active rule set.
func (r *Router) Rules() *RuleSet {
	return r.rules.Load()
}

// liveRules classifies with whatever rule set is active at call time.
type liveRules struct{ r *Router }

func (l liveRules) Classify(ctx context.Context, message string, catalog []mcp.ToolDescriptor) (Intent, error) {
	return NewRuleClassifier(l.r.rules.Load()).Classify(ctx, message, catalog)
}

// Tools returns a copy of the tool catalog.
func (r *Router) Tools() []mcp.ToolDescriptor {
	return slices.Clone(r.catalog)
}

// Handle routes message without a session. Conversational messages always get
// [FallbackText].
func (r *Router) Handle(ctx context.Context, message string) Response {
	return r.HandleSession(ctx, "", message)
}

// HandleSession routes message on behalf of sessionID.
func (r *Router) HandleSession(ctx context.Context, sessionID, message string) Response {
	ctx = observe.WithSession(ctx, sessionID)
	ctx, span := observe.StartSpan(ctx, "router.Handle")
	defer span.End()

	resp := r.route(ctx, sessionID, message)
	if resp.Sources == nil {
		resp.Sources = []rag.Source{}
	}
	span.SetAttributes(attribute.String("router.mode", string(resp.Mode)))
	r.metrics.RecordRoute(ctx, string(resp.Mode))
	return resp
}

func (r *Router) route(ctx context.Context, sessionID, message string) Response {
	intent := r.classify(ctx, message)
	if intent.Executes() {
		return r.execute(ctx, intent)
	}

	if r.rules.Load().IsKnowledgeQuestion(message) && r.kb != nil && r.kb.IsReady(ctx) {
		res := r.kb.Query(ctx, message)
		return Response{Text: res.Answer, Mode: ModeRAG, Sources: res.Sources}
	}

	if r.conv != nil && sessionID != "" {
		text, err := r.conv.Reply(ctx, sessionID, message)
		if err == nil {
			return Response{Text: text, Mode: ModeConversational}
		}
		observe.Logger(ctx).Warn("router: conversational reply failed", "err", err)
	}
	return Response{Text: FallbackText, Mode: ModeConversational}
}

func (r *Router) classify(ctx context.Context, message string) Intent {
	start := time.Now()
	intent, err := r.cls.Classify(ctx, message, r.catalog)
	r.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("router: classification failed, not executing a tool", "err", err)
		return Intent{}
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Bool("router.should_execute", intent.ShouldExecute),
		attribute.String("router.tool", intent.ToolName),
	)
	return intent
}

func (r *Router) execute(ctx context.Context, intent Intent) Response {
	rules := r.rules.Load()
	tool := r.resolve(intent.ToolName)
	args := rules.ApplyDefaults(tool, intent.Arguments)
	log := observe.Logger(ctx)
	log.Info("router: executing tool", "tool", tool, "reasoning", intent.Reasoning)

	start := time.Now()
	res := r.gw.CallTool(ctx, tool, args)
	r.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())

	if res.OK() {
		r.metrics.RecordToolCall(ctx, tool, "ok")
		return Response{
			Text:         FormatSuccess(tool, res, r.thumbBase),
			Mode:         ModeToolExecution,
			ToolExecuted: tool,
		}
	}

	r.metrics.RecordToolCall(ctx, tool, "error")
	msg := MergeNestedError(res.Failure.Message, res.Failure.Data)
	log.Warn("router: tool failed", "tool", tool, "err", Scrub(msg, r.secrets))
	return Response{
		Text:      FormatError(rules, tool, msg, args, r.secrets),
		Mode:      ModeToolError,
		ToolName:  tool,
		Error:     Scrub(msg, r.secrets),
		ErrorCode: res.Failure.Code,
		Arguments: args,
	}
}

// resolve maps name onto the closest catalog entry when it is not an exact
// match and the similarity clears the threshold.
func (r *Router) resolve(name string) string {
	if len(r.catalog) == 0 || r.threshold >= 1 {
		return name
	}
	best, bestScore := "", 0.0
	for _, t := range r.catalog {
		if t.Name == name {
			return name
		}
		if s := matchr.JaroWinkler(name, t.Name, false); s > bestScore {
			best, bestScore = t.Name, s
		}
	}
	if bestScore >= r.threshold {
		slog.Info("router: resolved tool name", "requested", name, "resolved", best, "score", bestScore)
		return best
	}
	return name
}
