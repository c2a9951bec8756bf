package router

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRuleSet_Parses(t *testing.T) {
	t.Parallel()

	rs := DefaultRuleSet()
	if rs.Version != 1 {
		t.Errorf("Version = %d, want 1", rs.Version)
	}
	if len(rs.Intents) == 0 {
		t.Error("expected intent rules")
	}
	last := rs.Guidance[len(rs.Guidance)-1]
	if len(last.StatusCodes) != 0 || len(last.Phrases) != 0 {
		t.Errorf("last guidance rule %q should match unconditionally", last.Name)
	}
}

func TestIsKnowledgeQuestion(t *testing.T) {
	t.Parallel()

	rs := DefaultRuleSet()
	tests := []struct {
		msg  string
		want bool
	}{
		{"What is AEM?", true},
		{"how does the Dispatcher cache work", true},
		{"Tell me about Adobe Experience Manager", true},
		{"Explain components", true},
		{"What is the weather?", false},
		{"AEM is great", false},
		{"hello", false},
	}
	for _, tt := range tests {
		if got := rs.IsKnowledgeQuestion(tt.msg); got != tt.want {
			t.Errorf("IsKnowledgeQuestion(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	rs := DefaultRuleSet()

	t.Run("adds absent keys", func(t *testing.T) {
		t.Parallel()
		got := rs.ApplyDefaults("aem-list-sites", map[string]any{})
		if got["path"] != "/content" {
			t.Errorf("path = %v, want /content", got["path"])
		}
	})

	t.Run("keeps present keys", func(t *testing.T) {
		t.Parallel()
		in := map[string]any{"path": "/content/wknd"}
		got := rs.ApplyDefaults("aem-list-sites", in)
		if got["path"] != "/content/wknd" {
			t.Errorf("path = %v, want /content/wknd", got["path"])
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		t.Parallel()
		in := map[string]any{}
		rs.ApplyDefaults("aem-list-sites", in)
		if len(in) != 0 {
			t.Errorf("input modified: %v", in)
		}
	})

	t.Run("tool without defaults", func(t *testing.T) {
		t.Parallel()
		got := rs.ApplyDefaults("echo", nil)
		if got == nil || len(got) != 0 {
			t.Errorf("got %v, want empty map", got)
		}
	})
}

func TestParseRuleSet_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown key",
			yaml:    "version: 1\nbogus: true\nguidance: [{name: g, text: x}]\n",
			wantErr: "bogus",
		},
		{
			name:    "bad version",
			yaml:    "version: 2\nguidance: [{name: g, text: x}]\n",
			wantErr: "unsupported rules version 2",
		},
		{
			name:    "bad pattern",
			yaml:    "version: 1\nintents: [{tool: echo, pattern: '('}]\nguidance: [{name: g, text: x}]\n",
			wantErr: "intents[0] (echo)",
		},
		{
			name:    "missing tool",
			yaml:    "version: 1\nintents: [{pattern: 'x'}]\nguidance: [{name: g, text: x}]\n",
			wantErr: "tool is required",
		},
		{
			name:    "bad template",
			yaml:    "version: 1\nguidance: [{name: g, text: '{{ if }}'}]\n",
			wantErr: "guidance[0] (g)",
		},
		{
			name:    "no guidance",
			yaml:    "version: 1\n",
			wantErr: "at least one guidance rule",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRuleSet(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRuleSet(t *testing.T) {
	t.Parallel()

	t.Run("empty path uses default", func(t *testing.T) {
		t.Parallel()
		rs, err := LoadRuleSet("")
		if err != nil {
			t.Fatalf("LoadRuleSet: %v", err)
		}
		if len(rs.Guidance) != len(DefaultRuleSet().Guidance) {
			t.Error("expected the embedded rule set")
		}
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		data := "version: 1\nknowledge_phrases: [how to]\ndomain_keywords: [sling]\nguidance:\n  - name: only\n    text: 'Tool {{ .Tool }} failed.'\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		rs, err := LoadRuleSet(path)
		if err != nil {
			t.Fatalf("LoadRuleSet: %v", err)
		}
		if !rs.IsKnowledgeQuestion("How to write a Sling model") {
			t.Error("custom phrases not applied")
		}
		if rs.IsKnowledgeQuestion("What is AEM?") {
			t.Error("default phrases should not apply")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadRuleSet(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error")
		}
	})
}
