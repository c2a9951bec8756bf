package mcp

import (
	"context"
	"slices"
	"sync"
	"time"
)

// defaultWindowSize is the number of recent calls kept per tool.
const defaultWindowSize = 100

// ToolHealth summarises recent calls to one tool.
type ToolHealth struct {
	Name      string  `json:"name"`
	Calls     int     `json:"calls"`
	P50Ms     int64   `json:"p50_ms"`
	P99Ms     int64   `json:"p99_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// window is a ring buffer of the most recent call latencies and outcomes.
type window struct {
	latencies []int64
	failed    []bool
	pos       int
	total     int
}

func newWindow(size int) *window {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &window{latencies: make([]int64, size), failed: make([]bool, size)}
}

func (w *window) record(ms int64, failed bool) {
	w.latencies[w.pos] = ms
	w.failed[w.pos] = failed
	w.pos = (w.pos + 1) % len(w.latencies)
	w.total++
}

func (w *window) len() int { return min(w.total, len(w.latencies)) }

func (w *window) health(name string) ToolHealth {
	h := ToolHealth{Name: name, Calls: w.total}
	n := w.len()
	if n == 0 {
		return h
	}
	sorted := slices.Clone(w.latencies[:n])
	slices.Sort(sorted)
	h.P50Ms = sorted[n/2]
	h.P99Ms = sorted[int(float64(n-1)*0.99)]

	errs := 0
	for _, f := range w.failed[:n] {
		if f {
			errs++
		}
	}
	h.ErrorRate = float64(errs) / float64(n)
	return h
}

// ─────────────────────────────────────────────────────────────────────────────
// Metered gateway
// ─────────────────────────────────────────────────────────────────────────────

// Metered wraps a Gateway and keeps a rolling latency and error window per
// tool. The zero value is not usable; create instances with [NewMetered].
type Metered struct {
	Gateway

	mu      sync.Mutex
	windows map[string]*window
	size    int
	now     func() time.Time
}

var _ Gateway = (*Metered)(nil)

// NewMetered wraps gw. windowSize ≤ 0 selects a window of 100 calls.
func NewMetered(gw Gateway, windowSize int) *Metered {
	return &Metered{
		Gateway: gw,
		windows: make(map[string]*window),
		size:    windowSize,
		now:     time.Now,
	}
}

// CallTool forwards to the wrapped gateway and records the outcome.
func (m *Metered) CallTool(ctx context.Context, name string, args map[string]any) ToolResult {
	start := m.now()
	res := m.Gateway.CallTool(ctx, name, args)
	elapsed := m.now().Sub(start).Milliseconds()

	m.mu.Lock()
	w, ok := m.windows[name]
	if !ok {
		w = newWindow(m.size)
		m.windows[name] = w
	}
	w.record(elapsed, !res.OK())
	m.mu.Unlock()
	return res
}

// Health returns a snapshot for every tool called so far, sorted by name.
func (m *Metered) Health() []ToolHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolHealth, 0, len(m.windows))
	for name, w := range m.windows {
		out = append(out, w.health(name))
	}
	slices.SortFunc(out, func(a, b ToolHealth) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}
