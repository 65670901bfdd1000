package livelog

import (
	"log/slog"
	"sync"

	"github.com/keinar/Agnox-sub002/pkg/api"
)

// subscriberBuffer is the per-subscriber event backlog. A subscriber that
// falls this far behind starts losing events rather than blocking the
// publisher.
const subscriberBuffer = 64

// Hub fans events out to live subscribers. The grouping key is the
// organization ID, not the task ID, so a chunk can never reach a
// subscriber outside the owning organization even if a task ID leaks.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscriber]struct{}
	logger *slog.Logger
}

// Subscriber is one live listener, scoped to a single organization.
type Subscriber struct {
	organizationID string
	events         chan api.Event
}

// Events returns the subscriber's event stream.
func (s *Subscriber) Events() <-chan api.Event {
	return s.events
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener for the organization's event group.
func (h *Hub) Subscribe(organizationID string) *Subscriber {
	sub := &Subscriber{
		organizationID: organizationID,
		events:         make(chan api.Event, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[organizationID]
	if !ok {
		group = make(map[*Subscriber]struct{})
		h.groups[organizationID] = group
	}
	group[sub] = struct{}{}

	return sub
}

// Unsubscribe removes the listener and closes its event stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[sub.organizationID]
	if !ok {
		return
	}
	if _, ok := group[sub]; !ok {
		return
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(h.groups, sub.organizationID)
	}
	close(sub.events)
}

// Publish delivers the event to every subscriber of the organization's
// group. Delivery is non-blocking: a subscriber with a full backlog drops
// the event so a slow or disconnected viewer never gates the pipeline.
func (h *Hub) Publish(organizationID string, ev api.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.groups[organizationID] {
		select {
		case sub.events <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				"organization_id", organizationID, "task_id", ev.TaskID, "type", ev.Type)
		}
	}
}

// SubscriberCount reports the current group size, for tests and metrics.
func (h *Hub) SubscriberCount(organizationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[organizationID])
}
