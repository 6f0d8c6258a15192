package store

import (
	"sync"

	"github.com/geniality/event-chat-backend/internal/domain"
)

// subscriberBuffer is the per-subscriber event backlog. A consumer that
// leaves this many events unread is considered dead and gets dropped.
const subscriberBuffer = 256

type subscriber struct {
	ch   chan domain.StreamEvent
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// hub fans committed events out to per-path subscriber sets. Publishers run
// under the store's commit mutex, so per-path ordering is the commit order.
type hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]*subscriber)}
}

// subscribe registers a listener for path. The cancel func is idempotent and
// safe to call after the hub dropped the subscriber on its own.
func (h *hub) subscribe(path string) (<-chan domain.StreamEvent, func()) {
	sub := &subscriber{ch: make(chan domain.StreamEvent, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	h.nextID++
	id := h.nextID
	if h.subs[path] == nil {
		h.subs[path] = make(map[uint64]*subscriber)
	}
	h.subs[path][id] = sub
	h.mu.Unlock()
	streamSubscribers.Inc()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[path]; ok {
			if _, live := set[id]; live {
				delete(set, id)
				streamSubscribers.Dec()
			}
			if len(set) == 0 {
				delete(h.subs, path)
			}
		}
		h.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// publish delivers ev to every subscriber of path. The subscriber map is
// snapshotted under the read lock before sending so a concurrent cancel
// cannot race the iteration. A full buffer drops the subscriber instead of
// blocking the commit path.
func (h *hub) publish(path string, ev domain.StreamEvent) {
	h.mu.RLock()
	set := h.subs[path]
	targets := make([]*subscriber, 0, len(set))
	ids := make([]uint64, 0, len(set))
	for id, sub := range set {
		targets = append(targets, sub)
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for i, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			h.drop(path, ids[i], sub)
		}
	}
}

// drop removes a stalled subscriber and closes its channel so the consumer
// learns it must resync.
func (h *hub) drop(path string, id uint64, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[path]; ok {
		if _, live := set[id]; live {
			delete(set, id)
			streamSubscribers.Dec()
			streamDroppedTotal.Inc()
		}
		if len(set) == 0 {
			delete(h.subs, path)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// closeAll terminates every subscription; used on store shutdown.
func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	var all []*subscriber
	for _, set := range h.subs {
		for _, sub := range set {
			all = append(all, sub)
			streamSubscribers.Dec()
		}
	}
	h.subs = make(map[string]map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
