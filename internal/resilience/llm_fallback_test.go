package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/aemassist/pkg/provider/llm"
	llmmock "github.com/MrWong99/aemassist/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		primaryErr error
		want       string
		wantSecond int
	}{
		{"primary answers", nil, "from primary", 0},
		{"secondary answers", errors.New("rate limited"), "from secondary", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary := &llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: "from primary"},
				CompleteErr:      tt.primaryErr,
			}
			secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

			fb := NewLLMFallback("openai", primary, CircuitBreakerConfig{MaxFailures: 3})
			fb.AddFallback("ollama", secondary)

			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "sys"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
			if n := len(secondary.Calls()); n != tt.wantSecond {
				t.Errorf("secondary called %d times, want %d", n, tt.wantSecond)
			}
			if n := len(primary.Calls()); n != 1 {
				t.Errorf("primary called %d times, want 1", n)
			}
			if got := primary.Calls()[0].Req.SystemPrompt; got != "sys" {
				t.Errorf("request not forwarded, SystemPrompt = %q", got)
			}
		})
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewLLMFallback("openai", &llmmock.Provider{CompleteErr: errTest}, CircuitBreakerConfig{})
	fb.AddFallback("ollama", &llmmock.Provider{CompleteErr: errTest})

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	states := fb.States()
	if len(states) != 2 || states["openai"] != StateClosed {
		t.Errorf("States() = %v", states)
	}
}
