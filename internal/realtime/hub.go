package realtime

import (
	"context"
	"sync"
)

// Hub is an in-process feed. Publish delivers synchronously to every
// matching channel.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*hubChannel
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*hubChannel)}
}

type hubChannel struct {
	hub     *Hub
	id      uint64
	filter  Filter
	onEvent func(Event)
	once    sync.Once
}

func (h *Hub) Open(_ context.Context, filter Filter, onEvent func(Event)) (Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrFeedClosed
	}
	h.nextID++
	ch := &hubChannel{hub: h, id: h.nextID, filter: filter, onEvent: onEvent}
	h.subs[ch.id] = ch
	return ch, nil
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrFeedClosed
	}
	targets := make([]*hubChannel, 0, len(h.subs))
	for _, ch := range h.subs {
		if ch.filter.Matches(ev) {
			targets = append(targets, ch)
		}
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		ch.onEvent(ev)
	}
	return nil
}

// Subscribers reports how many channels are open.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = make(map[uint64]*hubChannel)
	return nil
}

func (c *hubChannel) Close() error {
	c.once.Do(func() {
		c.hub.mu.Lock()
		delete(c.hub.subs, c.id)
		c.hub.mu.Unlock()
	})
	return nil
}
