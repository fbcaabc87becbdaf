package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

const DefaultBuffer = 32

// Hub fans progress events out to live subscribers. Delivery is best effort:
// a subscriber whose buffer is full misses the event and is dropped.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{buffer: buffer, logger: logger, subs: make(map[uint64]*Subscription)}
}

type Subscription struct {
	hub        *Hub
	id         uint64
	documentID string
	events     chan domain.ProgressEvent

	mu     sync.Mutex
	closed bool
}

// Subscribe registers a subscriber for one document, or for all documents when
// documentID is empty. Only events published afterwards are delivered.
func (h *Hub) Subscribe(documentID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		hub:        h,
		id:         h.nextID,
		documentID: documentID,
		events:     make(chan domain.ProgressEvent, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub
}

// Events is closed once the subscription is closed or pruned.
func (s *Subscription) Events() <-chan domain.ProgressEvent {
	return s.events
}

func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// offer is a non-blocking send; false means the subscriber is gone or full.
func (s *Subscription) offer(event domain.ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *Subscription) wants(documentID string) bool {
	return s.documentID == "" || s.documentID == documentID
}

func (h *Hub) Publish(_ context.Context, event domain.ProgressEvent) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.wants(event.DocumentID) {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if sub.offer(event) {
			continue
		}
		h.logger.Debug("progress_subscriber_dropped", "document_id", event.DocumentID, "subscriber", sub.id)
		h.remove(sub.id)
		sub.shutdown()
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}
