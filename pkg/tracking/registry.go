package tracking

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry is an ordered set of listeners keyed by caller-supplied id.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Listener

	logger  *slog.Logger
	onPanic func(id string, recovered any)
}

// NewRegistry creates an empty registry. onPanic, if non-nil, is called after
// a listener panic has been recovered and logged.
func NewRegistry(logger *slog.Logger, onPanic func(id string, recovered any)) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]Listener),
		logger:  logger,
		onPanic: onPanic,
	}
}

// Add registers fn under id. Re-adding an id replaces its callback and keeps
// its delivery position.
func (r *Registry) Add(id string, fn Listener) {
	if fn == nil {
		r.Remove(id)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}
	r.entries[id] = fn
}

// Remove unregisters id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		return
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Clear removes every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.entries = make(map[string]Listener)
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

type registeredListener struct {
	id string
	fn Listener
}

// Notify delivers ev to a snapshot of the registered listeners in
// registration order. A panicking listener does not stop delivery to the rest.
// Listeners may add, remove or clear during delivery; that takes effect on the
// next Notify.
func (r *Registry) Notify(ev Event) {
	r.mu.RLock()
	snapshot := make([]registeredListener, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, registeredListener{id: id, fn: r.entries[id]})
	}
	r.mu.RUnlock()

	for _, l := range snapshot {
		r.deliver(l, ev)
	}
}

func (r *Registry) deliver(l registeredListener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Tracking listener panicked",
				"listener", l.id,
				"event", ev.Type,
				"panic", fmt.Sprint(rec),
			)
			if r.onPanic != nil {
				r.onPanic(l.id, rec)
			}
		}
	}()
	l.fn(ev)
}
