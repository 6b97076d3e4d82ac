package fanout

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-integrations/core"
)

const defaultHubBuffer = 16

type Message struct {
	Topic   string
	UserID  string
	Payload []byte
}

// Hub is the in-process live channel registry. A user may hold several
// subscriptions (one per open connection); each receives every message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

type Subscription struct {
	UserID string

	hub    *Hub
	ch     chan Message
	done   chan struct{}
	closed atomic.Bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, buffer: buffer}
}

func (h *Hub) Subscribe(userID string) *Subscription {
	userID = strings.TrimSpace(userID)
	sub := &Subscription{
		UserID: userID,
		hub:    h,
		ch:     make(chan Message, h.buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[*Subscription]struct{}{}
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Broadcast blocks until every live subscription of userID accepted the
// message or ctx ends. A user with no live subscription is a no-op.
func (h *Hub) Broadcast(ctx context.Context, topic string, userID string, message []byte) error {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[userID]))
	for sub := range h.subs[userID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		msg := Message{Topic: topic, UserID: userID, Payload: append([]byte(nil), message...)}
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.TrimSpace(userID)])
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	s.hub.mu.Lock()
	delete(s.hub.subs[s.UserID], s)
	if len(s.hub.subs[s.UserID]) == 0 {
		delete(s.hub.subs, s.UserID)
	}
	s.hub.mu.Unlock()
}

var _ core.Broadcaster = (*Hub)(nil)
