package resilience

import (
	"context"

	"github.com/MrWong99/aemassist/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over from a primary model to
// the configured fallbacks.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] that prefers primary.
func NewLLMFallback(primaryName string, primary llm.Provider, cfg CircuitBreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primaryName, primary, cfg)}
}

// AddFallback registers another model. Call it before the provider is used.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// States reports the breaker state per model name.
func (f *LLMFallback) States() map[string]State { return f.group.States() }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
