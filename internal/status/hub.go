package status

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies what changed
type Kind string

const (
	KindStatusChanged      Kind = "status_changed"
	KindTaskProgress       Kind = "task_progress"
	KindSuggestionsChanged Kind = "suggestions_changed"
	KindCycleComplete      Kind = "cycle_complete"
)

// Notification is one broadcast message
type Notification struct {
	Kind     Kind           `json:"kind"`
	Time     time.Time      `json:"time"`
	Snapshot *Snapshot      `json:"snapshot,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Broadcaster delivers notifications to observers. Delivery is best-effort
// and must not block the caller.
type Broadcaster interface {
	Broadcast(n Notification)
}

// Notify sends n through b, swallowing any panic so a misbehaving
// broadcaster never interrupts job processing.
func Notify(b Broadcaster, n Notification, logger *slog.Logger) {
	if b == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("broadcast failed", "kind", n.Kind, "panic", r)
		}
	}()
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	b.Broadcast(n)
}

// Hub fans notifications out to subscribers over buffered channels.
// A subscriber whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Notification
	nextID  int
	closed  bool
	dropped atomic.Int64
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Notification)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unsubscribes and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Broadcast implements Broadcaster with non-blocking sends
func (h *Hub) Broadcast(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel; later broadcasts are ignored
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
