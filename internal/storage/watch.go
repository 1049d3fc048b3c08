package storage

import "sync"

// Change describes a committed mutation. Subscribers use it to refresh the
// query results they care about; it intentionally carries no row data.
type Change struct {
	Entity Entity
	Op     Op
	// PersonID is the owning person where one is known, 0 otherwise.
	PersonID int64
}

type Entity string

const (
	EntityPerson          Entity = "person"
	EntityTransaction     Entity = "transaction"
	EntityRecurringCharge Entity = "recurring_charge"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// watchHub fans committed changes out to subscribers. Sends never block: a
// subscriber that falls behind loses events rather than stalling writers.
type watchHub struct {
	mu     sync.Mutex
	subs   map[chan Change]struct{}
	closed bool
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[chan Change]struct{})}
}

func (h *watchHub) publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (h *watchHub) subscribe(buf int) chan Change {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Change, buf)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *watchHub) unsubscribe(ch chan Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Change]struct{})
}

// Watch registers a subscriber for committed changes. buf is the channel
// buffer size; the returned channel is closed by Unwatch or Close.
func (r *SQLiteRepository) Watch(buf int) <-chan Change {
	return r.hub.subscribe(buf)
}

// Unwatch detaches a channel previously returned by Watch and closes it.
func (r *SQLiteRepository) Unwatch(ch <-chan Change) {
	h := r.hub
	h.mu.Lock()
	var target chan Change
	for sub := range h.subs {
		if (<-chan Change)(sub) == ch {
			target = sub
			break
		}
	}
	h.mu.Unlock()
	if target != nil {
		h.unsubscribe(target)
	}
}
