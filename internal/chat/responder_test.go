package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/aemassist/internal/session"
	"github.com/MrWong99/aemassist/pkg/provider/llm"
	"github.com/MrWong99/aemassist/pkg/provider/llm/mock"
	"github.com/MrWong99/aemassist/pkg/types"
)

func TestReply_RecordsExchange(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hi!"}}
	store := session.NewMemStore()
	r := New(p, store, WithSystemPrompt("be brief"))

	got, err := r.Reply(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Hi!" {
		t.Errorf("Reply = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", req.Temperature, DefaultTemperature)
	}
	if req.SystemPrompt != "be brief" {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0] != types.UserMessage("hello") {
		t.Errorf("Messages = %+v", req.Messages)
	}

	want := []types.Message{types.UserMessage("hello"), types.AssistantMessage("Hi!")}
	hist := store.History(context.Background(), "s1")
	if len(hist) != len(want) {
		t.Fatalf("history = %+v", hist)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, hist[i], want[i])
		}
	}
}

func TestReply_SendsRetainedWindow(t *testing.T) {
	t.Parallel()

	n := 0
	p := &mock.Provider{CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		n++
		return &llm.CompletionResponse{Content: fmt.Sprintf("a%d", n)}, nil
	}}
	store := session.NewMemStore()
	r := New(p, store)

	for i := range 8 {
		if _, err := r.Reply(context.Background(), "s", fmt.Sprintf("u%d", i)); err != nil {
			t.Fatalf("Reply %d: %v", i, err)
		}
	}

	calls := p.Calls()
	last := calls[len(calls)-1].Req.Messages
	if len(last) != session.DefaultMaxMessages {
		t.Fatalf("last request carried %d messages, want %d", len(last), session.DefaultMaxMessages)
	}
	if last[len(last)-1].Content != "u7" {
		t.Errorf("last message = %q, want u7", last[len(last)-1].Content)
	}
	if got := len(store.History(context.Background(), "s")); got != session.DefaultMaxMessages {
		t.Errorf("history length = %d", got)
	}
}

func TestReply_ErrorKeepsUserMessageOnly(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("quota exceeded")}
	store := session.NewMemStore()
	r := New(p, store)

	if _, err := r.Reply(context.Background(), "s1", "hello"); err == nil {
		t.Fatal("expected error")
	}
	hist := store.History(context.Background(), "s1")
	if len(hist) != 1 || hist[0].Role != types.RoleUser {
		t.Errorf("history = %+v", hist)
	}
}

func TestReply_EmptyReply(t *testing.T) {
	t.Parallel()

	r := New(&mock.Provider{}, session.NewMemStore())
	if _, err := r.Reply(context.Background(), "s1", "hello"); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("err = %v, want ErrEmptyReply", err)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	store := session.NewMemStore()
	r := New(p, store, WithTemperature(0.2))

	_, _ = r.Reply(context.Background(), "s1", "hello")
	if !r.Reset(context.Background(), "s1") {
		t.Error("Reset must report success")
	}
	if !r.Reset(context.Background(), "unknown") {
		t.Error("Reset of an unknown session must report success")
	}
	if got := store.History(context.Background(), "s1"); len(got) != 0 {
		t.Errorf("history after reset = %+v", got)
	}
	if p.Calls()[0].Req.Temperature != 0.2 {
		t.Error("WithTemperature not applied")
	}
}
