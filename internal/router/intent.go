package router

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/aemassist/internal/mcp"
	"github.com/MrWong99/aemassist/pkg/provider/llm"
	"github.com/MrWong99/aemassist/pkg/types"
)

// Intent is the classification of one message. The zero value means "do not
// execute a tool".
type Intent struct {
	ShouldExecute bool           `json:"should_execute"`
	ToolName      string         `json:"tool_name"`
	Arguments     map[string]any `json:"arguments"`
	Reasoning     string         `json:"reasoning"`
}

// Executes reports whether the intent names a tool to run.
func (i Intent) Executes() bool {
	return i.ShouldExecute && i.ToolName != ""
}

// Classifier decides whether a message asks for a tool call.
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, message string, catalog []mcp.ToolDescriptor) (Intent, error)
}

// ExtractIntent decodes the first well-formed JSON object in text as an
// Intent. Surrounding prose and code fences are ignored. Text without such an
// object, or whose first object is not a valid Intent, yields the zero Intent.
func ExtractIntent(text string) Intent {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		// The first well-formed object decides; nested objects never count.
		var in Intent
		if err := json.Unmarshal(raw, &in); err != nil {
			return Intent{Arguments: map[string]any{}}
		}
		if in.Arguments == nil {
			in.Arguments = map[string]any{}
		}
		return in
	}
	return Intent{Arguments: map[string]any{}}
}

// ─────────────────────────────────────────────────────────────────────────────
// LLM classifier
// ─────────────────────────────────────────────────────────────────────────────

var _ Classifier = (*LLMClassifier)(nil)

// LLMClassifier asks a language model to classify the message and extracts
// the JSON intent from its reply.
type LLMClassifier struct {
	llm llm.Provider
}

// NewLLMClassifier returns a classifier backed by model.
func NewLLMClassifier(model llm.Provider) *LLMClassifier {
	return &LLMClassifier{llm: model}
}

// Classify implements [Classifier].
func (c *LLMClassifier) Classify(ctx context.Context, message string, catalog []mcp.ToolDescriptor) (Intent, error) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt:    classifierPrompt(catalog),
		Messages:        []types.Message{types.UserMessage("User message: " + message)},
		ZeroTemperature: true,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("router: classify: %w", err)
	}
	if resp == nil {
		return Intent{}, nil
	}
	return ExtractIntent(resp.Content), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rule classifier
// ─────────────────────────────────────────────────────────────────────────────

var _ Classifier = (*RuleClassifier)(nil)

// RuleClassifier matches messages against the [IntentRule] list of a
// [RuleSet]. The first matching rule whose tool is in the catalog wins. It is
// deterministic and needs no model.
type RuleClassifier struct {
	rules []IntentRule
}

// NewRuleClassifier returns a classifier over rs.Intents.
func NewRuleClassifier(rs *RuleSet) *RuleClassifier {
	return &RuleClassifier{rules: rs.Intents}
}

// Classify implements [Classifier]. It never returns an error.
func (c *RuleClassifier) Classify(_ context.Context, message string, catalog []mcp.ToolDescriptor) (Intent, error) {
	for _, r := range c.rules {
		if r.re == nil {
			continue
		}
		if len(catalog) > 0 && !slices.ContainsFunc(catalog, func(t mcp.ToolDescriptor) bool { return t.Name == r.Tool }) {
			continue
		}
		m := r.re.FindStringSubmatchIndex(message)
		if m == nil {
			continue
		}
		args := make(map[string]any, len(r.Arguments))
		for k, tmpl := range r.Arguments {
			args[k] = strings.TrimSpace(string(r.re.ExpandString(nil, tmpl, message, m)))
		}
		return Intent{
			ShouldExecute: true,
			ToolName:      r.Tool,
			Arguments:     args,
			Reasoning:     "matched rule for " + r.Tool,
		}, nil
	}
	return Intent{Arguments: map[string]any{}, Reasoning: "no rule matched"}, nil
}
