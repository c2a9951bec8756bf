package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/aemassist/pkg/provider/embeddings/ollama"
)

// embedServer answers /api/embed with the first len(input) vectors of responses.
func embedServer(t *testing.T, wantModel string, responses [][]float32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}
		out := responses
		if len(out) > len(req.Input) {
			out = out[:len(req.Input)]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": wantModel, "embeddings": out})
	}))
}

func TestNew_EmptyModel(t *testing.T) {
	t.Parallel()
	if _, err := ollama.New("", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestEmbed_Single(t *testing.T) {
	t.Parallel()
	want := []float32{0.1, 0.2, 0.3}
	srv := embedServer(t, "nomic-embed-text", [][]float32{want}, nil)
	defer srv.Close()

	p, err := ollama.New(srv.URL+"/", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 3 || got[2] != 0.3 {
		t.Errorf("Embed = %v, want %v", got, want)
	}
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	t.Parallel()
	srv := embedServer(t, "all-minilm", [][]float32{{1}}, nil)
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "all-minilm")
	if _, err := p.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when the server returns fewer vectors than inputs")
	}
}

func TestEmbed_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "missing")
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestDimensions_KnownModels(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		"nomic-embed-text":         768,
		"mxbai-embed-large:latest": 1024,
		"all-minilm":               384,
	}
	for model, want := range cases {
		p, _ := ollama.New("http://127.0.0.1:1", model)
		if got := p.Dimensions(); got != want {
			t.Errorf("Dimensions(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestDimensions_ProbesOnce(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := embedServer(t, "custom", [][]float32{{1, 2, 3, 4, 5}}, &hits)
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "custom")
	if got := p.Dimensions(); got != 5 {
		t.Fatalf("Dimensions() = %d, want 5", got)
	}
	_ = p.Dimensions()
	if n := hits.Load(); n != 1 {
		t.Errorf("probe requests = %d, want 1", n)
	}
}

func TestDimensions_Explicit(t *testing.T) {
	t.Parallel()
	p, _ := ollama.New("http://127.0.0.1:1", "custom", ollama.WithDimensions(42))
	if got := p.Dimensions(); got != 42 {
		t.Errorf("Dimensions() = %d, want 42", got)
	}
}
