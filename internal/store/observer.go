package store

import "sync"

// observerHub fans out event snapshots to subscribers. Each subscriber has a
// buffered channel of one; a pending stale snapshot is replaced rather than
// blocking the mutating store operation.
type observerHub struct {
	events *EventStore

	mu     sync.Mutex
	nextID int
	subs   map[int]chan []*Event
}

func newObserverHub(events *EventStore) *observerHub {
	return &observerHub{
		events: events,
		subs:   make(map[int]chan []*Event),
	}
}

// subscribe registers a new observer and delivers the current snapshot.
func (h *observerHub) subscribe() (<-chan []*Event, func()) {
	ch := make(chan []*Event, 1)

	// Seed the current snapshot before registering; a notify racing the
	// registration can then only replace it with a newer one.
	if snapshot, err := h.events.GetAll(); err == nil {
		ch <- snapshot
	} else {
		h.events.log.Warnf("Initial snapshot failed: %v", err)
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// notify pushes a fresh snapshot to every subscriber.
func (h *observerHub) notify() {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	snapshot, err := h.events.GetAll()
	if err != nil {
		h.events.log.Warnf("Snapshot for observers failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale pending snapshot, keep the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
