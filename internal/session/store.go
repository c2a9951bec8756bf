// Package session keeps short per-session conversation transcripts.
//
// A transcript is an ordered list of [types.Message] values keyed by an opaque
// session id. It is created lazily on the first append and truncated to the
// most recent MaxMessages entries after every append, so the model always sees
// a bounded window of the conversation.
//
// [MemStore] keeps everything in process memory. The number of sessions is
// bounded by an LRU policy and idle sessions expire after a TTL; nothing
// survives a restart.
package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aemassist/pkg/types"
)

// Defaults applied by [NewMemStore].
const (
	DefaultMaxMessages = 10
	DefaultCapacity    = 1024
	DefaultTTL         = time.Hour
)

// Store is the conversation memory used by the plain chat path.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds msgs to the session's transcript, creating it if absent,
	// and returns a copy of the retained transcript.
	Append(ctx context.Context, sessionID string, msgs ...types.Message) []types.Message

	// History returns a copy of the session's transcript. Unknown sessions
	// yield an empty, non-nil slice.
	History(ctx context.Context, sessionID string) []types.Message

	// Reset clears the session's transcript. Unknown ids are a no-op. It
	// always reports success.
	Reset(ctx context.Context, sessionID string) bool

	// Len returns the number of live sessions.
	Len() int
}

var _ Store = (*MemStore)(nil)

// entry is the value stored in each LRU list element.
type entry struct {
	id       string
	messages []types.Message
	lastUsed time.Time
}

// MemStore is an in-memory [Store] with LRU capacity and idle expiry.
type MemStore struct {
	maxMessages int
	capacity    int
	ttl         time.Duration
	now         func() time.Time

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[string]*list.Element
}

// Option is a functional option for [NewMemStore].
type Option func(*MemStore)

// WithMaxMessages sets how many messages a transcript retains. Values below 1
// are ignored.
func WithMaxMessages(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithCapacity bounds the number of sessions. When a new session would exceed
// it, the least recently used session is evicted. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithTTL sets the idle time after which a session is discarded. Zero
// disables expiry.
func WithTTL(d time.Duration) Option {
	return func(s *MemStore) {
		if d >= 0 {
			s.ttl = d
		}
	}
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(s *MemStore) { s.now = now }
}

// NewMemStore returns an empty store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		maxMessages: DefaultMaxMessages,
		capacity:    DefaultCapacity,
		ttl:         DefaultTTL,
		now:         time.Now,
		order:       list.New(),
		items:       make(map[string]*list.Element),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, sessionID string, msgs ...types.Message) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.lookup(sessionID, now)
	if e == nil {
		e = s.insert(sessionID, now)
	}
	e.messages = append(e.messages, msgs...)
	if over := len(e.messages) - s.maxMessages; over > 0 {
		// Copy into a fresh slice so the dropped prefix can be collected.
		e.messages = append([]types.Message(nil), e.messages[over:]...)
	}
	e.lastUsed = now
	return cloneMessages(e.messages)
}

// History implements [Store].
func (s *MemStore) History(_ context.Context, sessionID string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.lookup(sessionID, now)
	if e == nil {
		return []types.Message{}
	}
	e.lastUsed = now
	return cloneMessages(e.messages)
}

// Reset implements [Store].
func (s *MemStore) Reset(_ context.Context, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[sessionID]; ok {
		e := el.Value.(*entry)
		e.messages = nil
		e.lastUsed = s.now()
		s.order.MoveToFront(el)
	}
	return true
}

// Len implements [Store]. Expired sessions that were never touched again are
// still counted until they are evicted or accessed.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Sweep drops every session that has been idle longer than the TTL and
// returns how many were removed.
func (s *MemStore) Sweep() int {
	if s.ttl == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	// Idle sessions collect at the back of the list.
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if now.Sub(e.lastUsed) <= s.ttl {
			break
		}
		s.order.Remove(el)
		delete(s.items, e.id)
		removed++
		el = prev
	}
	return removed
}

// Janitor calls [MemStore.Sweep] every interval until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (s *MemStore) Janitor(ctx context.Context, interval time.Duration) {
	if s.ttl == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("session: expired idle sessions", "removed", n, "remaining", s.Len())
			}
		}
	}
}

// lookup returns the live entry for id and marks it most recently used. An
// expired entry is removed and nil returned. Must be called with s.mu held.
func (s *MemStore) lookup(id string, now time.Time) *entry {
	el, ok := s.items[id]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	if s.ttl > 0 && now.Sub(e.lastUsed) > s.ttl {
		s.order.Remove(el)
		delete(s.items, id)
		return nil
	}
	s.order.MoveToFront(el)
	return e
}

// insert adds a new empty entry, evicting the least recently used one when at
// capacity. Must be called with s.mu held.
func (s *MemStore) insert(id string, now time.Time) *entry {
	for s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*entry).id)
	}
	e := &entry{id: id, lastUsed: now}
	s.items[id] = s.order.PushFront(e)
	return e
}

func cloneMessages(in []types.Message) []types.Message {
	out := make([]types.Message, len(in))
	copy(out, in)
	return out
}
