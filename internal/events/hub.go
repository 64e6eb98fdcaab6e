package events

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSubscriptionClosed is returned by Next once the subscription or hub is closed.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Hub fans events out to independent subscribers. Publish never blocks:
// each subscriber owns an unbounded queue and drains it at its own pace.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscription
	closed      bool

	logger *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[uuid.UUID]*Subscription),
		logger:      logger,
	}
}

// Publish appends the event to every subscriber registered right now.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	// Snapshot, damit Subscribe/Close während der Zustellung nicht stören
	snapshot := make([]*Subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		sub.push(event)
	}
}

// Subscribe registers a new subscriber. It sees every event published from
// now on, in publish order. Callers must Close it when done.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		hub:    h,
		notify: make(chan struct{}, 1),
	}

	h.mu.Lock()
	if h.closed {
		sub.closed = true
	} else {
		h.subscribers[sub.id] = sub
	}
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("Event subscriber registered",
		zap.String("subscriber", sub.id.String()),
		zap.Int("total_subscribers", total))

	return sub
}

// Stream yields events until the loop breaks, ctx is done or the hub closes.
// The subscription is created when iteration starts and always released.
func (h *Hub) Stream(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		sub := h.Subscribe()
		defer sub.Close()

		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// SubscriberCount returns the number of registered subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close terminates every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[uuid.UUID]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.terminate()
	}
	h.logger.Debug("Event hub closed", zap.Int("released_subscribers", len(subs)))
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	_, ok := h.subscribers[id]
	delete(h.subscribers, id)
	total := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("Event subscriber unregistered",
			zap.String("subscriber", id.String()),
			zap.Int("total_subscribers", total))
	}
}

// Subscription is one subscriber's private, order-preserving queue.
type Subscription struct {
	id  uuid.UUID
	hub *Hub

	mu     sync.Mutex
	queue  []Event
	closed bool
	notify chan struct{}
}

func (s *Subscription) ID() uuid.UUID {
	return s.id
}

func (s *Subscription) push(event Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, ctx is done or the subscription closes.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		ev, ok, closed := s.pop()
		if ok {
			return ev, nil
		}
		if closed {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryNext returns the next queued event without blocking.
func (s *Subscription) TryNext() (Event, bool) {
	ev, ok, _ := s.pop()
	return ev, ok
}

// Pending returns the number of queued, undelivered events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) pop() (Event, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, true
	}
	if len(s.queue) == 0 {
		return nil, false, false
	}
	ev := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return ev, true, false
}

// Close deregisters the subscription and drops its queue. Safe to call repeatedly.
func (s *Subscription) Close() {
	if s.terminate() {
		s.hub.remove(s.id)
	}
}

func (s *Subscription) terminate() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	// Wartende Next-Aufrufe aufwecken
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}
