package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// NoOutputText replaces the body of a successful call without content.
const NoOutputText = "Tool executed successfully (no output)"

// redacted replaces credential values in user-visible output.
const redacted = "[redacted]"

// imagePreviewLen is how much of an inline image payload is shown.
const imagePreviewLen = 100

var (
	statusCodeRe = regexp.MustCompile(`status code (\d+)`)
	// missingParamRe picks parameter names out of schema validation output
	// such as `"siteTitle" ... "Required"`.
	missingParamRe = regexp.MustCompile(`"([^"]+)"[^"]*"Required"`)
)

// FormatSuccess renders a successful tool result. Text items are copied
// verbatim. Image items become a link when thumbBase is set and the item has
// a URI, otherwise a truncated placeholder.
func FormatSuccess(tool string, res mcp.ToolResult, thumbBase string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **Tool Executed:** `%s`\n\n", tool)

	if len(res.Content) == 0 {
		b.WriteString(NoOutputText)
		return b.String()
	}
	for _, item := range res.Content {
		switch item.Type {
		case "text":
			b.WriteString(item.Text)
			b.WriteByte('\n')
		case "image":
			if thumbBase != "" && item.URI != "" {
				fmt.Fprintf(&b, "🖼️ [%s](%s)\n", item.URI, joinURL(thumbBase, item.URI))
				continue
			}
			fmt.Fprintf(&b, "🖼️ Image: %s...\n", truncate(item.Data, imagePreviewLen))
		}
	}
	return b.String()
}

// FormatError renders a failed tool call with guidance from rs. Every value in
// secrets is replaced by [redacted] in the returned text, and the arguments
// are omitted for authentication failures.
func FormatError(rs *RuleSet, tool, message string, args map[string]any, secrets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ **Error executing `%s`**\n\n", tool)

	lower := strings.ToLower(message)
	status := ""
	if m := statusCodeRe.FindStringSubmatch(lower); m != nil {
		status = m[1]
	}

	for i := range rs.Guidance {
		g := &rs.Guidance[i]
		if !g.matches(status, lower) {
			continue
		}
		data := guidanceData{Tool: tool, Message: message, Status: status, Missing: missingParams(message)}
		if err := g.tmpl.Execute(&b, data); err != nil {
			slog.Warn("router: rendering guidance failed", "rule", g.Name, "err", err)
		}
		break
	}

	fmt.Fprintf(&b, "\n**Error message:** %s\n", message)
	if !rs.hidesArguments(message) {
		fmt.Fprintf(&b, "\n**Provided arguments:** %s", formatArgs(args))
	}
	return Scrub(b.String(), secrets)
}

// Scrub replaces every non-empty secret in s with [redacted].
func Scrub(s string, secrets []string) string {
	for _, sec := range secrets {
		if sec != "" {
			s = strings.ReplaceAll(s, sec, redacted)
		}
	}
	return s
}

// MergeNestedError appends the "error" or "message" field of a structured
// error payload to msg unless msg already contains it.
func MergeNestedError(msg string, data json.RawMessage) string {
	if len(data) == 0 {
		return msg
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return msg
	}
	for _, key := range []string{"error", "message"} {
		nested, ok := payload[key].(string)
		if !ok || nested == "" {
			continue
		}
		if strings.Contains(msg, nested) {
			return msg
		}
		return msg + ": " + nested
	}
	return msg
}

func missingParams(message string) []string {
	var out []string
	for _, m := range missingParamRe.FindAllStringSubmatch(message, -1) {
		out = append(out, m[1])
	}
	return out
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(data)
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
