package activity

import "sync"

// Hub is an in-memory Source. Each login session owns one; the websocket
// reader publishes into it and the session's monitor subscribes to it.
type Hub struct {
	mu       sync.RWMutex
	handlers map[EventType]map[Handler]struct{}
}

var _ Source = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		handlers: make(map[EventType]map[Handler]struct{}),
	}
}

// Subscribe registers h for each type. Repeated subscriptions are no-ops.
func (h *Hub) Subscribe(types []EventType, handler Handler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range types {
		set, ok := h.handlers[t]
		if !ok {
			set = make(map[Handler]struct{})
			h.handlers[t] = set
		}
		set[handler] = struct{}{}
	}
}

// Unsubscribe removes h from each type. Unknown handlers are ignored.
func (h *Hub) Unsubscribe(types []EventType, handler Handler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range types {
		set, ok := h.handlers[t]
		if !ok {
			continue
		}
		delete(set, handler)
		if len(set) == 0 {
			delete(h.handlers, t)
		}
	}
}

// Publish delivers e to every handler subscribed to its type
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	targets := make([]Handler, 0, len(h.handlers[e.Type]))
	for handler := range h.handlers[e.Type] {
		targets = append(targets, handler)
	}
	h.mu.RUnlock()

	// Handlers run outside the lock so they may unsubscribe themselves
	for _, handler := range targets {
		handler.HandleActivity(e)
	}
}

// Len returns the number of (type, handler) subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.handlers {
		n += len(set)
	}
	return n
}
