package router

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed rules/default.yaml
var defaultRulesYAML []byte

// RuleSet is the data-driven routing policy: which messages are knowledge
// questions, which arguments a tool gets by default, and how tool failures are
// explained. It is read-only after loading and safe for concurrent use.
type RuleSet struct {
	Version           int                       `yaml:"version"`
	KnowledgePhrases  []string                  `yaml:"knowledge_phrases"`
	DomainKeywords    []string                  `yaml:"domain_keywords"`
	Defaults          map[string]map[string]any `yaml:"defaults"`
	RedactArgumentsOn []string                  `yaml:"redact_arguments_on"`
	Intents           []IntentRule              `yaml:"intents"`
	Guidance          []GuidanceRule            `yaml:"guidance"`
}

// IntentRule maps a message pattern to a tool call for [RuleClassifier].
type IntentRule struct {
	Tool      string            `yaml:"tool"`
	Pattern   string            `yaml:"pattern"`
	Arguments map[string]string `yaml:"arguments"`

	re *regexp.Regexp
}

// GuidanceRule explains one class of tool failure.
type GuidanceRule struct {
	Name string `yaml:"name"`
	// StatusCodes match the code found in "status code NNN" phrasing.
	StatusCodes []string `yaml:"status_codes"`
	// Phrases match case-insensitively anywhere in the error message.
	Phrases []string `yaml:"phrases"`
	// Text is a text/template rendered with [guidanceData].
	Text string `yaml:"text"`

	tmpl *template.Template
}

// DefaultRuleSet returns the embedded rule set. It panics if the embedded
// file is invalid, which the package tests rule out.
func DefaultRuleSet() *RuleSet {
	rs, err := ParseRuleSet(bytes.NewReader(defaultRulesYAML))
	if err != nil {
		panic("router: embedded rules: " + err.Error())
	}
	return rs
}

// LoadRuleSet reads a rule set from path. An empty path yields
// [DefaultRuleSet].
func LoadRuleSet(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRuleSet(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("router: open rules %q: %w", path, err)
	}
	defer f.Close()
	rs, err := ParseRuleSet(f)
	if err != nil {
		return nil, fmt.Errorf("router: rules %q: %w", path, err)
	}
	return rs, nil
}

// ParseRuleSet decodes and compiles a YAML rule set. Unknown keys are
// rejected.
func ParseRuleSet(r io.Reader) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (rs *RuleSet) compile() error {
	var errs []error
	if rs.Version != 1 {
		errs = append(errs, fmt.Errorf("unsupported rules version %d", rs.Version))
	}
	for i := range rs.Intents {
		ir := &rs.Intents[i]
		if ir.Tool == "" {
			errs = append(errs, fmt.Errorf("intents[%d]: tool is required", i))
		}
		re, err := regexp.Compile(ir.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("intents[%d] (%s): %w", i, ir.Tool, err))
			continue
		}
		ir.re = re
	}
	funcs := template.FuncMap{"has": containsAny}
	for i := range rs.Guidance {
		g := &rs.Guidance[i]
		tmpl, err := template.New(g.Name).Funcs(funcs).Option("missingkey=error").Parse(g.Text)
		if err != nil {
			errs = append(errs, fmt.Errorf("guidance[%d] (%s): %w", i, g.Name, err))
			continue
		}
		g.tmpl = tmpl
	}
	if len(rs.Guidance) == 0 {
		errs = append(errs, errors.New("at least one guidance rule is required"))
	}
	return errors.Join(errs...)
}

// IsKnowledgeQuestion reports whether message contains both a knowledge
// phrase and a domain keyword.
func (rs *RuleSet) IsKnowledgeQuestion(message string) bool {
	lower := strings.ToLower(message)
	return containsAny(lower, rs.KnowledgePhrases...) && containsAny(lower, rs.DomainKeywords...)
}

// ApplyDefaults returns a copy of args with the tool's default arguments added
// for keys that are absent. Present keys are never overwritten.
func (rs *RuleSet) ApplyDefaults(tool string, args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(rs.Defaults[tool]))
	for k, v := range args {
		out[k] = v
	}
	for k, v := range rs.Defaults[tool] {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// hidesArguments reports whether the failure message is sensitive enough that
// the call arguments must not be echoed.
func (rs *RuleSet) hidesArguments(message string) bool {
	return containsAny(strings.ToLower(message), rs.RedactArgumentsOn...)
}

// guidanceData is the template context of a [GuidanceRule].
type guidanceData struct {
	Tool    string
	Message string
	Status  string
	Missing []string
}

// matches reports whether the rule applies to a failure.
func (g *GuidanceRule) matches(status, lowerMsg string) bool {
	if len(g.StatusCodes) == 0 && len(g.Phrases) == 0 {
		return true
	}
	for _, c := range g.StatusCodes {
		if status != "" && c == status {
			return true
		}
	}
	return containsAny(lowerMsg, g.Phrases...)
}

// containsAny reports whether s contains any of subs, ignoring case.
func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
