// Package chat implements plain conversational replies backed by a language
// model and a per-session transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/aemassist/internal/observe"
	"github.com/MrWong99/aemassist/internal/session"
	"github.com/MrWong99/aemassist/pkg/provider/llm"
	"github.com/MrWong99/aemassist/pkg/types"
)

// DefaultTemperature is the sampling temperature of conversational replies.
const DefaultTemperature = 0.7

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("chat: empty reply")

// Responder continues a session's conversation with a language model.
//
// Each turn works as follows:
//
//  1. The user message is appended to the session transcript.
//  2. The model is called with the retained transcript.
//  3. On success the reply is appended and returned.
//
// A failed call leaves the user message in the transcript and records no
// reply. Turns for the same session are not serialised; two concurrent turns
// may interleave their messages.
type Responder struct {
	llm          llm.Provider
	store        session.Store
	systemPrompt string
	temperature  float64
	metrics      *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Responder)

// WithSystemPrompt prepends a system prompt to every call.
func WithSystemPrompt(p string) Option {
	return func(r *Responder) { r.systemPrompt = p }
}

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New returns a Responder that keeps transcripts in store.
func New(model llm.Provider, store session.Store, opts ...Option) *Responder {
	r := &Responder{
		llm:         model,
		store:       store,
		temperature: DefaultTemperature,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reply appends message to the session, asks the model for a continuation and
// records it.
func (r *Responder) Reply(ctx context.Context, sessionID, message string) (string, error) {
	ctx = observe.WithSession(ctx, sessionID)
	ctx, span := observe.StartSpan(ctx, "chat.Reply")
	defer span.End()

	history := r.store.Append(ctx, sessionID, types.UserMessage(message))

	start := time.Now()
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: r.systemPrompt,
		Messages:     history,
		Temperature:  r.temperature,
	})
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, "llm", "chat", "error")
		return "", fmt.Errorf("chat: complete: %w", err)
	}
	r.metrics.RecordProviderRequest(ctx, "llm", "chat", "ok")
	if resp == nil || resp.Content == "" {
		return "", ErrEmptyReply
	}

	r.store.Append(ctx, sessionID, types.AssistantMessage(resp.Content))
	observe.Logger(ctx).Debug("chat: reply recorded", "session_id", sessionID, "history", len(history)+1)
	return resp.Content, nil
}

// Reset clears the session transcript. It always reports success.
func (r *Responder) Reset(ctx context.Context, sessionID string) bool {
	return r.store.Reset(ctx, sessionID)
}
