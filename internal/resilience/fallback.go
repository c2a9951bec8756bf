package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/aemassist/internal/observe"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// was skipped by its breaker.
var ErrAllFailed = errors.New("all providers failed")

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and its fallbacks, each behind a dedicated
// [CircuitBreaker]. Entries must be added before the group is shared.
type FallbackGroup[T any] struct {
	cfg     CircuitBreakerConfig
	entries []fallbackEntry[T]
}

// NewFallbackGroup creates a group whose first entry is primary. cfg is
// copied for every entry with Name replaced by the entry name.
func NewFallbackGroup[T any](primaryName string, primary T, cfg CircuitBreakerConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.Add(primaryName, primary)
	return fg
}

// Add appends a fallback. Entries are tried in the order they were added.
func (fg *FallbackGroup[T]) Add(name string, v T) {
	cfg := fg.cfg
	cfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: v, breaker: NewCircuitBreaker(cfg)})
}

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// States reports the breaker state of every entry by name.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.entries))
	for _, e := range fg.entries {
		out[e.name] = e.breaker.State()
	}
	return out
}

// Do runs fn against each entry in order and returns the first success.
// It stops early once ctx is done; otherwise every failure moves on to the
// next entry and the final error wraps [ErrAllFailed].
func Do[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	log := observe.Logger(ctx)
	for _, e := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := e.breaker.Execute(func() error {
			var err error
			out, err = fn(ctx, e.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("resilience: skipping provider with open circuit", "provider", e.name)
			continue
		}
		log.Warn("resilience: provider failed, trying next", "provider", e.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
