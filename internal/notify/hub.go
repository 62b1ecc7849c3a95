// Package notify delivers item change records to owners' live sessions over
// websockets.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"itemcore/pkg/domain"
)

var _ domain.NotificationSink = (*Hub)(nil)

// DefaultQueueSize bounds each session's pending message queue.
const DefaultQueueSize = 64

// Logger is the structured logger the hub reports through.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithQueueSize sets the per-session queue bound.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queue = n
		}
	}
}

// Session is one subscriber's queue. Messages are JSON-encoded change records.
type Session struct {
	owner domain.OwnerID
	send  chan []byte
	once  sync.Once
	hub   *Hub
}

// Owner returns the owner the session listens for.
func (s *Session) Owner() domain.OwnerID { return s.owner }

// C yields queued messages; it is closed when the session ends.
func (s *Session) C() <-chan []byte { return s.send }

// Close unregisters the session. Calling it again is a no-op.
func (s *Session) Close() {
	s.once.Do(func() { s.hub.unregister(s) })
}

// Hub maps owners to their live sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[domain.OwnerID]map[*Session]struct{}
	closed   bool
	queue    int
	logger   Logger
	dropped  atomic.Int64
}

// NewHub constructs an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions: make(map[domain.OwnerID]map[*Session]struct{}),
		queue:    DefaultQueueSize,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscribe registers a new session for owner. It returns nil once the hub
// is closed.
func (h *Hub) Subscribe(owner domain.OwnerID) *Session {
	s := &Session{owner: owner, send: make(chan []byte, h.queue), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	set, ok := h.sessions[owner]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[owner] = set
	}
	set[s] = struct{}{}
	return s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.owner]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.owner)
	}
	close(s.send)
}

// Notify queues change on every session of owner. Owners without a session
// are skipped; full queues drop the message.
func (h *Hub) Notify(_ context.Context, owner domain.OwnerID, change domain.ChangeRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.sessions[owner]
	if len(set) == 0 {
		return
	}
	msg, err := json.Marshal(change)
	if err != nil {
		h.logger.Warn("encode item change", "item_id", change.Row.ItemID, "error", err)
		return
	}
	for s := range set {
		select {
		case s.send <- msg:
		default:
			h.dropped.Add(1)
			h.logger.Warn("session queue full, dropping item change", "owner_id", owner, "item_id", change.Row.ItemID)
		}
	}
}

// Sessions reports the number of live sessions for owner.
func (h *Hub) Sessions(owner domain.OwnerID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[owner])
}

// Dropped reports how many messages were discarded on full queues.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close ends every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for owner, set := range h.sessions {
		for s := range set {
			close(s.send)
		}
		delete(h.sessions, owner)
	}
}
