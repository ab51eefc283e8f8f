package realtime

import (
	"sync"

	"github.com/AgusMolinaCode/bitlab/internal/models"
)

// Hub fans change events out to the subscribers of the affected user. It
// implements repository.Notifier.
//
// Each subscriber has a buffer of one: events carry no payload and any
// pending event already triggers a full recomputation, so a burst of
// changes collapses into a single delivery.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan models.ChangeEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish never blocks.
func (h *Hub) Publish(e models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[e.UserID] {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Subscribe returns the user's event channel and a cancel func that closes
// it. cancel is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan models.ChangeEvent, func()) {
	s := &subscriber{ch: make(chan models.ChangeEvent, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[userID][s]; !ok {
				return
			}
			delete(h.subs[userID], s)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(s.ch)
		})
	}
}

// Subscribers returns how many channels are open for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for userID, subs := range h.subs {
		for s := range subs {
			close(s.ch)
		}
		delete(h.subs, userID)
	}
}
