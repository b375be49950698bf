package engine

import (
	"sync"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

// eventRegistry maps every event kind to at most one callback
type eventRegistry struct {
	mu        sync.RWMutex
	callbacks [common.NumEventKinds]common.EventCallback
}

// subscribe installs cb for kind, replacing a previous subscription
func (r *eventRegistry) subscribe(kind common.EventKind, cb common.EventCallback) error {
	idx := kind.Index()
	if idx < 0 {
		return ErrUnknownEvent
	}
	if cb == nil {
		return ErrNilCallback
	}

	r.mu.Lock()
	r.callbacks[idx] = cb
	r.mu.Unlock()
	return nil
}

// unsubscribe clears the callback of kind. Clearing an empty slot is not an error.
func (r *eventRegistry) unsubscribe(kind common.EventKind) error {
	idx := kind.Index()
	if idx < 0 {
		return ErrUnknownEvent
	}

	r.mu.Lock()
	r.callbacks[idx] = nil
	r.mu.Unlock()
	return nil
}

// lookup returns the callback of kind
func (r *eventRegistry) lookup(kind common.EventKind) (common.EventCallback, bool) {
	idx := kind.Index()
	if idx < 0 {
		return nil, false
	}

	r.mu.RLock()
	cb := r.callbacks[idx]
	r.mu.RUnlock()
	return cb, cb != nil
}
