package engine

import (
	"sync"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

// syncEntry is a pending synchronous request. The caller waits on wait,
// which has room for exactly one response.
type syncEntry struct {
	id      uint32
	kind    common.MessageKind
	wait    chan common.Response
	started time.Time
}

// asyncEntry is a pending asynchronous request
type asyncEntry struct {
	id      uint32
	kind    common.MessageKind
	cb      common.ResponseCallback
	timer   *time.Timer
	started time.Time
}

// responseDeliverer runs an async callback. The engine serializes and guards it.
type responseDeliverer func(cb common.ResponseCallback, resp common.Response)

// registry owns all pending transactions. Whoever removes an entry from a
// table owns its single outcome, so at most one resolution happens per id.
// The lock is never held while a callback runs.
type registry struct {
	mu    sync.Mutex
	sync  *arena[syncEntry]
	async *arena[asyncEntry]

	deliver responseDeliverer
	// observe is called with the round trip time of every resolved request
	observe func(started time.Time)
}

func newRegistry(maxSync, maxAsync int, deliver responseDeliverer) *registry {
	return &registry{
		sync:    newArena[syncEntry](maxSync),
		async:   newArena[asyncEntry](maxAsync),
		deliver: deliver,
		observe: func(time.Time) {},
	}
}

// registerSync adds a synchronous request and returns the channel its response arrives on
func (r *registry) registerSync(id uint32, kind common.MessageKind) (<-chan common.Response, error) {
	wait := make(chan common.Response, 1)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.async.contains(id) {
		return nil, errDuplicateID
	}
	if err := r.sync.insert(id, syncEntry{id: id, kind: kind, wait: wait, started: time.Now()}); err != nil {
		return nil, err
	}
	return wait, nil
}

// registerAsync adds an asynchronous request. The watchdog timer is attached later by armTimer.
func (r *registry) registerAsync(id uint32, kind common.MessageKind, cb common.ResponseCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sync.contains(id) {
		return errDuplicateID
	}
	return r.async.insert(id, asyncEntry{id: id, kind: kind, cb: cb, started: time.Now()})
}

// armTimer attaches the watchdog timer to a pending async request.
// It returns false if the request is already gone, the caller must then stop the timer.
func (r *registry) armTimer(id uint32, timer *time.Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.async.get(id)
	if !ok {
		return false
	}
	entry.timer = timer
	return true
}

// contains reports whether id is pending in either table
func (r *registry) contains(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sync.contains(id) || r.async.contains(id)
}

// resolve removes the request of id and delivers the remote response to its owner.
// Sync waiters get the response on their channel, async callbacks run on the
// calling goroutine after the lock was released.
func (r *registry) resolve(id uint32, resp common.Response) error {
	return r.finish(id, true, func(common.MessageKind) common.Response { return resp })
}

// fail completes the request of id with a locally synthesized status
func (r *registry) fail(id uint32, status common.StatusCode) error {
	return r.finish(id, false, func(kind common.MessageKind) common.Response {
		return common.Response{Kind: kind, UID: id, Status: status}
	})
}

// finish removes the request of id and delivers the response built by mk
func (r *registry) finish(id uint32, observe bool, mk func(kind common.MessageKind) common.Response) error {
	r.mu.Lock()

	if entry, ok := r.sync.remove(id); ok {
		r.mu.Unlock()
		if observe {
			r.observe(entry.started)
		}
		entry.wait <- mk(entry.kind)
		return nil
	}

	entry, ok := r.async.remove(id)
	r.mu.Unlock()
	if !ok {
		return ErrNoSuchTransaction
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	if observe {
		r.observe(entry.started)
	}
	r.deliver(entry.cb, mk(entry.kind))
	return nil
}

// cancel removes the request of id without delivering anything.
// It returns false if the request was already resolved.
func (r *registry) cancel(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sync.remove(id); ok {
		return true
	}
	if entry, ok := r.async.remove(id); ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		return true
	}
	return false
}

// expire is called by the watchdog. If the async request of id is still
// pending it is removed and its callback receives StatusRequestTimedOut.
func (r *registry) expire(id uint32) bool {
	r.mu.Lock()
	entry, ok := r.async.remove(id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	r.deliver(entry.cb, common.Response{Kind: entry.kind, UID: id, Status: common.StatusRequestTimedOut})
	return true
}

// drain removes every pending request and completes it with status.
// It returns the number of requests completed.
func (r *registry) drain(status common.StatusCode) int {
	r.mu.Lock()
	syncEntries := r.sync.removeAll()
	asyncEntries := r.async.removeAll()
	r.mu.Unlock()

	for _, entry := range syncEntries {
		entry.wait <- common.Response{Kind: entry.kind, UID: entry.id, Status: status}
	}
	for _, entry := range asyncEntries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		r.deliver(entry.cb, common.Response{Kind: entry.kind, UID: entry.id, Status: status})
	}
	return len(syncEntries) + len(asyncEntries)
}

// pending returns the number of outstanding requests per table
func (r *registry) pending() (syncN, asyncN int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sync.len(), r.async.len()
}
