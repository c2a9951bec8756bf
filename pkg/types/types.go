// Package types defines the shared types used across aemassist packages.
//
// Cross-cutting data structures live here to avoid circular imports between
// the providers, the conversation store and the router.
package types

// Conversation roles understood by every LLM provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged entry in a conversation transcript.
// Messages are immutable once created; order within a transcript is significant.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// UserMessage returns a Message with RoleUser.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a Message with RoleAssistant.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage returns a Message with RoleSystem.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
