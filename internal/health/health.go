// Package health serves the liveness and readiness probes.
//
//   - /healthz reports that the process can serve HTTP.
//   - /readyz runs every registered [Checker] and answers 503 when one fails.
//
// Both answer with {"status": "ok"|"fail", "checks": {...}}.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrNotReady is returned by readiness probes that have nothing more specific
// to say.
var ErrNotReady = errors.New("not ready")

// Checker is a named readiness probe. Check returns nil when the dependency is
// usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Gateway probes the tool server by asking it to describe itself.
func Gateway(gw mcp.Gateway) Checker {
	return Checker{
		Name: "mcp",
		Check: func(ctx context.Context) error {
			info, err := gw.ServerInfo(ctx)
			if err != nil {
				return fmt.Errorf("server info: %w", err)
			}
			if !info.Healthy() {
				return fmt.Errorf("server reports status %q", info.Status)
			}
			return nil
		},
	}
}

// Ready adapts a boolean readiness function, such as the retrieval
// answerer's IsReady, into a [Checker].
func Ready(name string, ready func(ctx context.Context) bool) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if !ready(ctx) {
				return ErrNotReady
			}
			return nil
		},
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler]. Checkers run concurrently on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res, status := result{Status: "ok", Checks: checks}, http.StatusOK
	if failed {
		res.Status, status = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
