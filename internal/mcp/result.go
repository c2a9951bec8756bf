package mcp

import (
	"encoding/json"
	"fmt"
)

// callResult is the MCP tools/call result payload.
type callResult struct {
	Content []json.RawMessage `json:"content"`
	IsError bool              `json:"isError"`
}

// DecodeCallResult maps a raw tools/call result to a ToolResult. A result
// flagged isError becomes a Failure whose message is its text content.
func DecodeCallResult(raw json.RawMessage) ToolResult {
	var cr callResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cr); err != nil {
			return TransportFailure(fmt.Errorf("decode tool result: %w", err))
		}
	}

	content := make([]ContentItem, 0, len(cr.Content))
	for _, c := range cr.Content {
		content = append(content, DecodeContentItem(c))
	}

	res := Succeeded(content, raw)
	if cr.IsError {
		msg := res.Text()
		if msg == "" {
			msg = "tool reported an error"
		}
		return Failed(msg, nil, raw)
	}
	return res
}

// DecodeContentItem maps one MCP content block. Embedded resources are
// flattened so that their URI, text and blob land on the item itself.
func DecodeContentItem(raw json.RawMessage) ContentItem {
	var block struct {
		ContentItem
		Resource *struct {
			URI      string `json:"uri"`
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Blob     string `json:"blob"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return ContentItem{Type: "text", Text: string(raw)}
	}
	item := block.ContentItem
	if r := block.Resource; r != nil {
		item.URI = r.URI
		item.MimeType = r.MimeType
		item.Text = r.Text
		item.Data = r.Blob
	}
	return item
}
