package engine

import "time"

// armWatchdog starts the response timer of an async request. Resolving the
// request stops the timer, expiry completes it with StatusRequestTimedOut.
// Each request ends in exactly one of resolved, timed out, send failed or
// stopped because all of them race for the registry entry.
func (e *Engine) armWatchdog(uid uint32, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		e.onTimeout(uid)
	})
	if !e.registry.armTimer(uid, timer) {
		timer.Stop()
	}
}

// onTimeout runs on the timer goroutine
func (e *Engine) onTimeout(uid uint32) {
	if e.registry.expire(uid) {
		e.metrics.timedOut.Inc()
		Logger.Warningf("Async request uid=%d timed out", uid)
	}
}
